package flow

import (
	"context"
	"errors"

	"gallerybot/internal/domain"
)

// Outcome tells the caller what happened to an input.
//
// Consumed is false when no step was active; the input is then free for
// other handlers. Step is the step now active (nil when none). Completed
// is set when a flow's effect ran successfully. Stale means the step was
// replaced concurrently and the input was dropped.
type Outcome struct {
	Consumed  bool
	Completed bool
	Stale     bool
	Step      Step
}

func (o Outcome) Stage() Stage {
	if o.Step == nil {
		return None
	}
	return o.Step.Stage()
}

type Machine struct {
	cursors *Cursors
	effects Effects
}

func NewMachine(fx Effects, shards int) *Machine {
	return &Machine{cursors: NewCursors(shards), effects: fx}
}

// Begin starts a flow at step, discarding any step the user had.
func (m *Machine) Begin(userID string, step Step) {
	m.cursors.Set(userID, step)
}

// Cancel returns the user to None and reports the stage that was dropped.
func (m *Machine) Cancel(userID string) (Stage, bool) {
	step, ok := m.cursors.Clear(userID)
	if !ok {
		return None, false
	}
	return step.Stage(), true
}

func (m *Machine) Current(userID string) Step {
	step, _, _ := m.cursors.Get(userID)
	return step
}

func (m *Machine) Stage(userID string) Stage {
	if step := m.Current(userID); step != nil {
		return step.Stage()
	}
	return None
}

// Handle offers in to the user's active step. Content of a kind the step does
// not accept is refused before the step sees it. On a validation error the
// step stays active. A completing step is cleared before its effect runs, so two
// inputs racing on the same step cannot both complete it; if the effect
// reports a validation error the step is put back unless a new flow started.
func (m *Machine) Handle(ctx context.Context, userID string, in Input) (Outcome, error) {
	step, gen, ok := m.cursors.Get(userID)
	if !ok {
		return Outcome{}, nil
	}

	if kind := step.Accepts(); !in.Skip && !kind.Allows(in.Content.Kind) {
		return Outcome{Consumed: true, Step: step}, kind.refusal()
	}

	tr, err := step.Next(in)
	if err != nil {
		return Outcome{Consumed: true, Step: step}, err
	}

	if tr.Next != nil {
		if !m.cursors.CompareAndSet(userID, gen, tr.Next) {
			return Outcome{Consumed: true, Stale: true, Step: m.Current(userID)}, nil
		}
		return Outcome{Consumed: true, Step: tr.Next}, nil
	}

	if !m.cursors.CompareAndClear(userID, gen) {
		return Outcome{Consumed: true, Stale: true, Step: m.Current(userID)}, nil
	}
	if tr.Effect == nil {
		return Outcome{Consumed: true, Completed: true}, nil
	}
	if err := tr.Effect(ctx, userID, m.effects); err != nil {
		if errors.Is(err, domain.ErrValidation) && m.cursors.SetIfAbsent(userID, step) {
			return Outcome{Consumed: true, Step: step}, err
		}
		return Outcome{Consumed: true, Step: m.Current(userID)}, err
	}
	return Outcome{Consumed: true, Completed: true, Step: m.Current(userID)}, nil
}
