// Package tracker holds the last validated plate across live-stream frames.
//
// A held plate survives frames that were never submitted to the detector,
// and is cleared by the first frame in which a plate region was detected but
// did not validate.
package tracker

import "anpr-pipeline/internal/domain/anpr"

type Status string

const (
	Empty   Status = "empty"
	Holding Status = "holding"
)

type State struct {
	Status Status
	Plate  anpr.TrackedPlate
}

func (s State) Holding() bool {
	return s.Status == Holding
}

// Observation summarizes one frame for the tracker.
type Observation struct {
	Frame int64
	// Attempted is false for skipped frames.
	Attempted bool
	// Detected is the last region of the frame that was read, nil if none.
	Detected *anpr.Box
	// Plate is the validated plate text, "" if nothing validated.
	Plate string
	// PlateBox is the detection box the plate was read from.
	PlateBox anpr.Box
}

// Tracker is owned by a single processing loop and is not safe for
// concurrent use.
type Tracker struct {
	state State
}

func New() *Tracker {
	return &Tracker{state: State{Status: Empty}}
}

func (t *Tracker) State() State {
	return t.state
}

func (t *Tracker) Reset() {
	t.state = State{Status: Empty}
}

// Observe applies one frame and returns the resulting state.
func (t *Tracker) Observe(obs Observation) State {
	switch {
	case obs.Plate != "":
		since := obs.Frame
		if t.state.Holding() && t.state.Plate.Text == obs.Plate {
			since = t.state.Plate.ValidSince
		}
		t.state = State{
			Status: Holding,
			Plate: anpr.TrackedPlate{
				Text:       obs.Plate,
				Box:        obs.PlateBox,
				ValidSince: since,
			},
		}
	case obs.Attempted && obs.Detected != nil:
		t.state = State{Status: Empty}
	}
	return t.state
}

// Directives returns what to draw for a frame given the state after Observe.
func Directives(state State, obs Observation) []anpr.Directive {
	if state.Holding() {
		return []anpr.Directive{
			{Kind: anpr.DirectiveLabel, Box: state.Plate.Box, Text: state.Plate.Text, Outcome: anpr.OutcomeSuccess},
			{Kind: anpr.DirectiveBox, Box: state.Plate.Box, Outcome: anpr.OutcomeSuccess},
		}
	}
	if obs.Attempted && obs.Detected != nil {
		return []anpr.Directive{
			{Kind: anpr.DirectiveBox, Box: *obs.Detected, Outcome: anpr.OutcomeFailure},
		}
	}
	return nil
}
