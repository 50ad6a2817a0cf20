// Package overseer provides a top-level convenience entry point for
// assembling an orchestrator with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/overseer"
//
//	o, err := overseer.New(
//		overseer.WithDecomposer(myDecomposer),
//		overseer.WithJudge(myJudge),
//		overseer.WithWorker("agent-1", myWorker, "research"),
//	)
//	result, err := o.Run(ctx, "write a market report")
//
// This is a thin wrapper around [quick.New]; both produce identical
// results. Use this package when you prefer the shorter import path.
package overseer

import (
	"github.com/BaSui01/overseer/quick"
)

// Option configures the orchestrator created by [New].
type Option = quick.Option

// Overseer bundles the orchestrator with its collaborators.
type Overseer = quick.Overseer

// New assembles an orchestrator. Contracts not supplied fall back to
// deterministic local defaults; see [quick.New].
func New(opts ...Option) (*Overseer, error) {
	return quick.New(opts...)
}

// Re-export common options so callers never need to import quick/.

// WithDecomposer sets the decomposer contract.
var WithDecomposer = quick.WithDecomposer

// WithJudge sets the judge contract.
var WithJudge = quick.WithJudge

// WithWorker registers a worker under an agent ID.
var WithWorker = quick.WithWorker

// WithPanel enables consensus-panel arbitration.
var WithPanel = quick.WithPanel

// WithCheckpointStore sets the checkpoint backend.
var WithCheckpointStore = quick.WithCheckpointStore

// WithGateTimeout bounds how long a suspended thread waits for a decision.
var WithGateTimeout = quick.WithGateTimeout

// WithMaxRetries caps re-executions of a rejected subtask.
var WithMaxRetries = quick.WithMaxRetries

// WithParallel enables wave-based parallel execution.
var WithParallel = quick.WithParallel

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger
