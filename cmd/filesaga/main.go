// Command filesaga runs the file-ingestion pipeline from the command line,
// either as a compensating saga or as the simple non-compensating variant.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fortressi/filesaga"
	"github.com/fortressi/filesaga/activities"
	"github.com/fortressi/filesaga/config"
	"github.com/fortressi/filesaga/ingest"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	fileURL := flag.String("url", "", "URL of the file to ingest")
	filename := flag.String("filename", "data.json", "name to store the file under")
	simple := flag.Bool("simple", false, "run the non-compensating pipeline")
	resume := flag.String("resume", "", "workflow id of an interrupted run to resume")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(log, *configPath, *fileURL, *filename, *simple, *resume); err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, configPath, fileURL, filename string, simple bool, resume string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config %s: %w", configPath, err)
		}
		cfg = loaded
	}
	if url := os.Getenv("SERVICE_URL"); url != "" {
		cfg.Service.URL = url
	}

	client := &http.Client{Timeout: cfg.Service.Timeout()}
	acts, err := activities.NewWithClient(cfg.Storage.DataDir, cfg.Service.URL, client, log)
	if err != nil {
		return err
	}
	registry, err := ingest.NewRegistry(acts)
	if err != nil {
		return err
	}

	// The run is cancellable from the terminal; a cancelled saga still
	// unwinds its compensations before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input := filesaga.SagaInput{FileURL: fileURL, Filename: filename}

	if simple {
		plan, err := ingest.NewSimplePlan()
		if err != nil {
			return err
		}
		pipeline := filesaga.NewPipeline(plan, registry, log)
		outcome, err := pipeline.Run(ctx, input)
		report(outcome)
		return err
	}

	plan, err := ingest.NewPlan()
	if err != nil {
		return err
	}

	store, err := filesaga.NewFileStore(cfg.Storage.StateDir)
	if err != nil {
		return err
	}
	events, err := filesaga.NewFileEventLog(acts.LogDir())
	if err != nil {
		return err
	}

	engine := filesaga.NewEngine(plan, registry,
		filesaga.WithStore(store),
		filesaga.WithEventLogger(events),
		filesaga.WithMetrics(filesaga.NewMetrics()),
		filesaga.WithLogger(log),
	)

	var outcome *filesaga.SagaOutcome
	if resume != "" {
		outcome, err = engine.Resume(ctx, resume)
	} else {
		outcome, err = engine.Run(ctx, input)
	}
	report(outcome)

	var aborted *filesaga.AbortedError
	if errors.As(err, &aborted) {
		log.Error("saga aborted", "workflow_id", aborted.WorkflowID,
			"cancelled", aborted.Cancelled, "compensations", len(aborted.Unwind))
	}
	return err
}

// report prints the outcome as JSON on stdout for scripting.
func report(outcome *filesaga.SagaOutcome) {
	if outcome == nil {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(outcome)
}
