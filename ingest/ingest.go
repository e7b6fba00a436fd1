// Package ingest wires the canonical file-ingestion saga: the stage table,
// per-stage timeouts and retry policies, and the compensation registered by
// each effectful stage.
package ingest

import (
	"fmt"
	"time"

	"github.com/fortressi/filesaga"
	"github.com/fortressi/filesaga/activities"
)

// PlanName identifies the compensating file-ingestion plan.
const PlanName = "file-ingestion"

// SimplePlanName identifies the non-compensating variant.
const SimplePlanName = "file-ingestion-simple"

// NewRegistry registers every file-ingestion activity and undo function.
func NewRegistry(acts *activities.FileActivities) (*filesaga.ActivityRegistry, error) {
	registry := filesaga.NewActivityRegistry()

	forward := map[filesaga.ActivityName]filesaga.Activity{
		activities.StageDownload:       acts.Download,
		activities.StageValidate:       acts.Validate,
		activities.StageBackup:         acts.Backup,
		activities.StageParse:          acts.Parse,
		activities.StageProcess:        acts.Process,
		activities.StageSave:           acts.SaveWith("processed_"),
		"save_simple":                  acts.SaveWith("simple_processed_"),
		activities.StageUpload:         acts.Upload,
		activities.StageValidateResult: acts.ValidateResult,
		activities.StageNotify:         acts.Notify,
		activities.StageCleanup:        acts.Cleanup,
	}
	for name, activity := range forward {
		if err := registry.Register(name, activity); err != nil {
			return nil, fmt.Errorf("registering %s: %w", name, err)
		}
	}

	if err := registry.RegisterUndo(filesaga.CleanupFile, acts.CleanupFile); err != nil {
		return nil, err
	}
	if err := registry.RegisterUndo(filesaga.RollbackUpload, acts.RollbackUpload); err != nil {
		return nil, err
	}

	return registry, nil
}

// NewPlan builds the compensating stage table. The order is fixed:
// download, validate, backup, parse, process, save, upload, validate_result,
// notify, cleanup. Download, save, and upload register compensations; the
// rest leave nothing behind that a rollback would need to touch.
func NewPlan() (*filesaga.Plan, error) {
	return filesaga.NewPlanBuilder(PlanName).
		Append(filesaga.Stage{
			Name:     activities.StageDownload,
			Activity: activities.StageDownload,
			Timeout:  5 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 30 * time.Second, MaxAttempts: 3},
			Compensation: func(output any) (filesaga.CompensationAction, bool) {
				result, ok := output.(activities.DownloadResult)
				if !ok {
					return filesaga.CompensationAction{}, false
				}
				return filesaga.CompensationAction{Kind: filesaga.CleanupFile, Target: result.FilePath}, true
			},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageValidate,
			Activity: activities.StageValidate,
			Timeout:  2 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 10 * time.Second, MaxAttempts: 2},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageBackup,
			Activity: activities.StageBackup,
			Timeout:  3 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 10 * time.Second, MaxAttempts: 3},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageParse,
			Activity: activities.StageParse,
			Timeout:  5 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 15 * time.Second, MaxAttempts: 2},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageProcess,
			Activity: activities.StageProcess,
			Timeout:  10 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: 2 * time.Second, MaxInterval: 30 * time.Second, MaxAttempts: 3},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageSave,
			Activity: activities.StageSave,
			Timeout:  3 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 10 * time.Second, MaxAttempts: 3},
			Compensation: func(output any) (filesaga.CompensationAction, bool) {
				result, ok := output.(activities.SaveResult)
				if !ok {
					return filesaga.CompensationAction{}, false
				}
				return filesaga.CompensationAction{Kind: filesaga.CleanupFile, Target: result.OutputPath}, true
			},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageUpload,
			Activity: activities.StageUpload,
			Timeout:  15 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: 5 * time.Second, MaxInterval: time.Minute, MaxAttempts: 3},
			Compensation: func(output any) (filesaga.CompensationAction, bool) {
				result, ok := output.(activities.UploadResult)
				if !ok {
					return filesaga.CompensationAction{}, false
				}
				return filesaga.CompensationAction{Kind: filesaga.RollbackUpload, Target: result.UploadID}, true
			},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageValidateResult,
			Activity: activities.StageValidateResult,
			Timeout:  2 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 10 * time.Second, MaxAttempts: 2},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageNotify,
			Activity: activities.StageNotify,
			Timeout:  2 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: 2 * time.Second, MaxInterval: 30 * time.Second, MaxAttempts: 3},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageCleanup,
			Activity: activities.StageCleanup,
			Timeout:  2 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 10 * time.Second, MaxAttempts: 2},
		}).
		Build()
}

// NewSimplePlan builds the non-compensating subset: download, validate,
// parse, process, save, cleanup. No stage registers a compensation; a
// failure leaves completed stages' files in place for cleanup by hand.
func NewSimplePlan() (*filesaga.Plan, error) {
	return filesaga.NewPlanBuilder(SimplePlanName).
		Append(filesaga.Stage{
			Name:     activities.StageDownload,
			Activity: activities.StageDownload,
			Timeout:  5 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 30 * time.Second, MaxAttempts: 3},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageValidate,
			Activity: activities.StageValidate,
			Timeout:  2 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 10 * time.Second, MaxAttempts: 2},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageParse,
			Activity: activities.StageParse,
			Timeout:  5 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 15 * time.Second, MaxAttempts: 2},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageProcess,
			Activity: activities.StageProcess,
			Timeout:  10 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: 2 * time.Second, MaxInterval: 30 * time.Second, MaxAttempts: 3},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageSave,
			Activity: "save_simple",
			Timeout:  3 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 10 * time.Second, MaxAttempts: 3},
		}).
		Append(filesaga.Stage{
			Name:     activities.StageCleanup,
			Activity: activities.StageCleanup,
			Timeout:  2 * time.Minute,
			Retry:    filesaga.RetryPolicy{InitialInterval: time.Second, MaxInterval: 10 * time.Second, MaxAttempts: 2},
		}).
		Build()
}
