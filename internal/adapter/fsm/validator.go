// Package fsm validates tenant lifecycle transitions with looplab/fsm.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	loopfsm "github.com/looplab/fsm"

	"github.com/plexica/plexica-sub002/internal/domain"
)

var _ domain.TransitionValidator = (*Validator)(nil)

// lifecycle is domain.Transitions in looplab/fsm form. Rows sharing an event
// and a destination collapse into one descriptor with several sources.
var lifecycle = describe(domain.Transitions)

func describe(transitions []domain.Transition) []loopfsm.EventDesc {
	var descs []loopfsm.EventDesc
	seen := make(map[string]domain.Status) // event+src -> dst

	for _, t := range transitions {
		edge := string(t.Event) + "/" + string(t.Src)
		if dst, dup := seen[edge]; dup && dst != t.Dst {
			panic(fmt.Sprintf("fsm: %s from %s leads to both %s and %s", t.Event, t.Src, dst, t.Dst))
		}
		seen[edge] = t.Dst

		i := slices.IndexFunc(descs, func(d loopfsm.EventDesc) bool {
			return d.Name == string(t.Event) && d.Dst == string(t.Dst)
		})
		if i < 0 {
			descs = append(descs, loopfsm.EventDesc{Name: string(t.Event), Dst: string(t.Dst)})
			i = len(descs) - 1
		}
		descs[i].Src = append(descs[i].Src, string(t.Src))
	}
	return descs
}

// Validator implements domain.TransitionValidator. A looplab machine holds its
// own current state, so every call positions a fresh one at the tenant's
// status; the validator itself is stateless and safe for concurrent use.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

func machineAt(current domain.Status) *loopfsm.FSM {
	return loopfsm.NewFSM(string(current), lifecycle, nil)
}

// Apply returns the status event leads to from current, or a
// *domain.InvalidStateError when the lifecycle does not allow it.
func (v *Validator) Apply(ctx context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	m := machineAt(current)

	err := m.Event(ctx, string(event))
	switch {
	case err == nil:
		return domain.Status(m.Current()), nil
	case isRejection(err):
		return "", &domain.InvalidStateError{Event: event, Current: current}
	default:
		return "", fmt.Errorf("applying %s to %s: %w", event, current, err)
	}
}

func isRejection(err error) bool {
	var invalid loopfsm.InvalidEventError
	var unknown loopfsm.UnknownEventError
	var noop loopfsm.NoTransitionError
	return errors.As(err, &invalid) || errors.As(err, &unknown) || errors.As(err, &noop)
}

// Available lists the events accepted from current, sorted by name.
func (v *Validator) Available(current domain.Status) []domain.Event {
	names := machineAt(current).AvailableTransitions()
	slices.Sort(names)

	out := make([]domain.Event, len(names))
	for i, n := range names {
		out[i] = domain.Event(n)
	}
	return out
}
