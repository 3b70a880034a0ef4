// Package template holds the loaded work unit templates and validates them
// against the action registry before the scheduler is allowed to start.
package template

import (
	"fmt"

	"dayline/internal/config"
	"dayline/internal/domain"
	"dayline/internal/registry"
)

// Store is the immutable set of templates for a run.
type Store struct {
	templates map[string]domain.WorkUnitTemplate
	order     []string
}

// Load builds a store, rejecting duplicate template ids.
func Load(tpls []domain.WorkUnitTemplate) (*Store, []config.ValidationError) {
	s := &Store{templates: map[string]domain.WorkUnitTemplate{}}
	var errs []config.ValidationError
	for _, t := range tpls {
		if t.ID == "" {
			errs = append(errs, config.ValidationError{Scope: "template", Msg: "id is required"})
			continue
		}
		if _, dup := s.templates[t.ID]; dup {
			errs = append(errs, config.ValidationError{Scope: "template", ID: t.ID, Msg: "duplicate id"})
			continue
		}
		s.templates[t.ID] = t
		s.order = append(s.order, t.ID)
	}
	return s, errs
}

// ValidateAgainst checks that every action id in every template's sequence
// resolves in the registry. Any gap here must prevent the scheduler from
// starting; a template silently routing to a missing action at dispatch
// time is exactly the defect this guards against.
func (s *Store) ValidateAgainst(reg *registry.Registry) []config.ValidationError {
	var errs []config.ValidationError
	for _, id := range s.order {
		t := s.templates[id]
		if len(t.ActionSequence) == 0 {
			errs = append(errs, config.ValidationError{Scope: "template", ID: t.ID, Msg: "action sequence is empty"})
		}
		for _, actionID := range t.ActionSequence {
			if _, err := reg.Resolve(actionID); err != nil {
				errs = append(errs, config.ValidationError{
					Scope: "template",
					ID:    t.ID,
					Ref:   actionID,
					Msg:   "action does not resolve",
				})
			}
		}
	}
	return errs
}

// Get returns a template by id.
func (s *Store) Get(id string) (domain.WorkUnitTemplate, error) {
	t, ok := s.templates[id]
	if !ok {
		return domain.WorkUnitTemplate{}, fmt.Errorf("template %s not loaded", id)
	}
	return t, nil
}

// All returns templates in load order.
func (s *Store) All() []domain.WorkUnitTemplate {
	tpls := make([]domain.WorkUnitTemplate, 0, len(s.order))
	for _, id := range s.order {
		tpls = append(tpls, s.templates[id])
	}
	return tpls
}

// Len reports the number of loaded templates.
func (s *Store) Len() int { return len(s.templates) }
