// Package registry resolves action ids to their static definitions and
// bound handlers. The registry is populated once at startup and read-only
// afterwards, so Resolve is safe for concurrent callers without locking.
package registry

import (
	"context"
	"fmt"
	"log"

	"dayline/internal/config"
	"dayline/internal/domain"
)

// Invocation is the context handed to an action handler: the work unit the
// action runs for, the current phase, and the resolved definition.
type Invocation struct {
	WorkUnitID string
	TemplateID string
	Phase      domain.Phase
	Definition domain.ActionDefinition
}

// Handler is the executable side of an action. Implementations must not
// panic across this boundary; failures belong in the returned result.
type Handler interface {
	Execute(ctx context.Context, inv Invocation) domain.ActionResult
}

// Registry holds the loaded action catalog and the handler table that
// handler refs resolve against.
type Registry struct {
	defs     map[string]domain.ActionDefinition
	order    []string
	handlers map[string]Handler
	logger   *log.Logger
}

// ErrNotFound is returned by Resolve for unknown action ids.
type ErrNotFound struct {
	ActionID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("action %s not registered", e.ActionID)
}

// New creates an empty registry. Bind handlers before calling Register so
// unresolved handler refs surface as load-time validation errors.
func New(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		defs:     map[string]domain.ActionDefinition{},
		handlers: map[string]Handler{},
		logger:   logger,
	}
}

// Bind attaches a handler under a ref name ("builtin:note" and the like).
func (r *Registry) Bind(ref string, h Handler) {
	r.handlers[ref] = h
}

// Register loads the action catalog. Duplicate ids and unresolved handler
// refs are load-time errors; an empty catalog is valid but logged.
func (r *Registry) Register(defs []domain.ActionDefinition) []config.ValidationError {
	var errs []config.ValidationError
	for _, def := range defs {
		if def.ID == "" {
			errs = append(errs, config.ValidationError{Scope: "action", Msg: "id is required"})
			continue
		}
		if _, dup := r.defs[def.ID]; dup {
			errs = append(errs, config.ValidationError{Scope: "action", ID: def.ID, Msg: "duplicate id"})
			continue
		}
		if _, ok := r.handlers[def.HandlerRef]; !ok {
			errs = append(errs, config.ValidationError{Scope: "action", ID: def.ID, Ref: def.HandlerRef, Msg: "handler ref does not resolve"})
			continue
		}
		r.defs[def.ID] = def
		r.order = append(r.order, def.ID)
	}
	if len(r.defs) == 0 && len(errs) == 0 {
		r.logger.Printf("WARNING: action registry is empty; the scheduler will have nothing to run")
	}
	return errs
}

// Resolve returns the definition for an action id. Read-only and
// side-effect-free.
func (r *Registry) Resolve(actionID string) (domain.ActionDefinition, error) {
	def, ok := r.defs[actionID]
	if !ok {
		return domain.ActionDefinition{}, ErrNotFound{ActionID: actionID}
	}
	return def, nil
}

// Handler returns the bound handler for a definition.
func (r *Registry) Handler(def domain.ActionDefinition) (Handler, error) {
	h, ok := r.handlers[def.HandlerRef]
	if !ok {
		return nil, fmt.Errorf("handler %s not bound for action %s", def.HandlerRef, def.ID)
	}
	return h, nil
}

// All returns the catalog in registration order.
func (r *Registry) All() []domain.ActionDefinition {
	defs := make([]domain.ActionDefinition, 0, len(r.order))
	for _, id := range r.order {
		defs = append(defs, r.defs[id])
	}
	return defs
}

// Len reports the catalog size.
func (r *Registry) Len() int { return len(r.defs) }
