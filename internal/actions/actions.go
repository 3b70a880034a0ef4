// Package actions ships the built-in handler set so a config-only
// deployment has runnable handler refs. Real deployments bind their own
// handlers next to these.
package actions

import (
	"context"
	"fmt"
	"time"

	"dayline/internal/domain"
	"dayline/internal/registry"
)

// Func adapts a plain function to the Handler interface.
type Func func(ctx context.Context, inv registry.Invocation) domain.ActionResult

func (f Func) Execute(ctx context.Context, inv registry.Invocation) domain.ActionResult {
	return f(ctx, inv)
}

// Note records a one-line trace of the action having run. The estimated
// cost is reported as the actual cost.
func Note() registry.Handler {
	return Func(func(_ context.Context, inv registry.Invocation) domain.ActionResult {
		return domain.ActionResult{
			ActionID: inv.Definition.ID,
			Success:  true,
			Output:   fmt.Sprintf("%s during %s for unit %s", inv.Definition.Name, inv.Phase, inv.WorkUnitID),
			CostUSD:  inv.Definition.EstimatedCost,
		}
	})
}

// Pause idles briefly, honoring cancellation. Free of charge.
func Pause(d time.Duration) registry.Handler {
	if d <= 0 {
		d = 250 * time.Millisecond
	}
	return Func(func(ctx context.Context, inv registry.Invocation) domain.ActionResult {
		select {
		case <-ctx.Done():
			return domain.ActionResult{ActionID: inv.Definition.ID, Success: false, Error: ctx.Err().Error()}
		case <-time.After(d):
			return domain.ActionResult{ActionID: inv.Definition.ID, Success: true, Output: "paused"}
		}
	})
}

// Fail always fails; exists so configs can exercise the failure path.
func Fail() registry.Handler {
	return Func(func(_ context.Context, inv registry.Invocation) domain.ActionResult {
		return domain.ActionResult{
			ActionID: inv.Definition.ID,
			Success:  false,
			Error:    fmt.Sprintf("action %s configured to fail", inv.Definition.ID),
		}
	})
}

// BindBuiltins attaches the built-in handlers under their well-known refs.
func BindBuiltins(reg *registry.Registry) {
	reg.Bind("builtin:note", Note())
	reg.Bind("builtin:pause", Pause(0))
	reg.Bind("builtin:fail", Fail())
}
