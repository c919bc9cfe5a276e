// Package sandbox specifies the secure code-execution contract (A5).
// A real sandbox is an external collaborator out of scope for this
// module; the only implementation here is a stub that refuses to run
// anything, so C5's optional executable-snippet path has something to
// call without embedding an actual execution environment.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Result is one code execution's outcome.
type Result struct {
	Success       bool
	ReturnValue   any
	Output        string
	Errors        string
	ExecutionTime time.Duration
}

// Executor runs a code snippet in some isolated context and reports
// its outcome. Real implementations live outside this module.
type Executor interface {
	Execute(ctx context.Context, code string, execContext map[string]any) (Result, error)
}

// RefusingStub implements Executor by refusing every request with a
// configuration error, so callers wired against the contract get a
// predictable, typed failure rather than a nil-pointer surprise.
type RefusingStub struct{}

// Execute always fails: no sandbox is configured.
func (RefusingStub) Execute(ctx context.Context, code string, execContext map[string]any) (Result, error) {
	return Result{Success: false, Errors: "no code-execution sandbox configured"},
		fmt.Errorf("sandbox: code execution is not available in this deployment")
}
