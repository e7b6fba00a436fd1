// Package filesaga orchestrates a multi-step file-ingestion pipeline as a
// distributed saga: download, validate, back up, parse, transform, persist,
// upload, and notify, with automatic compensation on partial failure.
//
// Sagas orchestrate a sequence of effectful tasks that can fail. The saga
// pattern provides useful semantics for unwinding the whole operation when
// any task fails. For more on distributed sagas, see this 2017 JOTB talk by
// Caitie McCaffrey: https://www.youtube.com/watch?v=0UTOLRTwOX0
//
// # Overview
//
//  1. Implement your activities (forward work) and undo functions, and put
//     them in an ActivityRegistry.
//  2. Describe the pipeline as a Plan: an ordered table of stages, each with
//     an activity name, a timeout, a RetryPolicy, and (optionally) a
//     CompensationBuilder that derives the stage's undo action from its
//     output. PlanBuilder enforces that the stages form a linear chain.
//  3. Create an Engine over the plan and registry, optionally wiring a Store
//     for durable progress, an EventLogger for audit, and Metrics.
//  4. Call Engine.Run. On success you get a SagaOutcome with every stage's
//     result; on failure the registered compensations are unwound
//     newest-first and the caller receives an *AbortedError wrapping the
//     original stage failure.
//
// The ingest subpackage wires the canonical file-ingestion plan; Pipeline is
// the non-compensating variant for when rollback semantics are unnecessary.
package filesaga
