package queue

import (
	"context"
	"fmt"

	"github.com/roman-kulish/radio-telescope/internal/experiment"
)

// State is the lifecycle state of a queue item
type State int

const (
	Pending State = iota
	Confirmed
	Skipped
	Aborted
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Skipped:
		return "skipped"
	case Aborted:
		return "aborted"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Decision is the operator's answer to an item prompt
type Decision int

const (
	Accept Decision = iota
	Skip
	Quit
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Skip:
		return "skip"
	case Quit:
		return "quit"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// Decider is asked before every item in interactive mode. It runs after the
// item summary was printed and before any hardware is touched.
type Decider interface {
	Decide(ctx context.Context, item Item) (Decision, error)
}

// DeciderFunc adapts a plain function to a Decider
type DeciderFunc func(ctx context.Context, item Item) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, item Item) (Decision, error) {
	return f(ctx, item)
}

// Decisions returns a Decider replaying the given answers in order. Once
// exhausted it quits.
func Decisions(answers ...Decision) Decider {
	var i int
	return DeciderFunc(func(context.Context, Item) (Decision, error) {
		if i >= len(answers) {
			return Quit, nil
		}
		d := answers[i]
		i++
		return d, nil
	})
}

// Item is a queue entry together with its outcome
type Item struct {
	Index int // Zero-based position in the queue
	Total int // Queue length
	Spec  experiment.Spec
	State State
	Path  string // Archive path once Completed
	Err   error  // Failure once Failed
}

// ItemError is returned when an item fails. The items after it are left
// Pending.
type ItemError struct {
	Index  int
	Prefix string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("queue item %d (%s): %v", e.Index+1, e.Prefix, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
