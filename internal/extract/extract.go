// Package extract harvests unique identifiers from a list that reveals more
// entries on demand, and decides when to stop.
package extract

import (
	"context"
	"errors"
	"strings"
	"time"

	"giveaway/internal/domain"
	"giveaway/internal/participants"
)

const (
	DefaultMaxIterations = 50
	DefaultStallLimit    = 3
)

// RawItem is one candidate entry of the visible batch.
type RawItem interface {
	Identifier() (string, error)
}

// Provider exposes the currently visible entries and a reveal-more step.
// A Provider is bound to one page or session and must not be shared between
// concurrent Run calls.
type Provider interface {
	CurrentBatch(ctx context.Context) ([]RawItem, error)
	RevealMore(ctx context.Context) (bool, error)
}

// Finite is implemented by providers whose whole content is known up front,
// such as exported identifier files. Run fails instead of returning a
// truncated result when it stops before such a provider is fully read.
type Finite interface {
	Unread() int
}

type IdentifierEvent struct {
	Identifier string
	Total      int
}

type IterationEvent struct {
	Iteration int
	New       int
	Total     int
	Elapsed   time.Duration
}

// Observer receives progress events. Implementations must not block for long.
type Observer interface {
	IdentifierFound(IdentifierEvent)
	IterationDone(IterationEvent)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) IdentifierFound(ev IdentifierEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.IdentifierFound(ev)
		}
	}
}

func (o Observers) IterationDone(ev IterationEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.IterationDone(ev)
		}
	}
}

type Options struct {
	MaxIterations int
	StallLimit    int
	Observer      Observer
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.StallLimit <= 0 {
		o.StallLimit = DefaultStallLimit
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type StopReason string

const (
	StopMaxIterations StopReason = "max_iterations"
	StopConverged     StopReason = "converged"
	StopExhausted     StopReason = "exhausted"
	StopCanceled      StopReason = "canceled"
)

type Result struct {
	// Identifiers holds unique identifiers in first-seen order.
	Identifiers []string
	Iterations  int
	Reason      StopReason
	// ItemErrors records candidates that failed to read and were skipped.
	ItemErrors []error
	Elapsed    time.Duration
}

var errMalformed = errors.New("malformed identifier")

// Run drives read/reveal cycles against p until the list converges, the
// provider runs out of content, the iteration cap is reached or ctx is
// canceled. Cancellation returns the partial result with a nil error.
// Stopping early on a Finite provider is a configuration error.
// Provider failures are returned as navigation errors together with the
// partial result.
func Run(ctx context.Context, p Provider, opts Options) (Result, error) {
	opts = opts.withDefaults()
	start := opts.Now()
	seen := make(map[string]struct{})
	var res Result
	stalled := 0

	finish := func(reason StopReason) Result {
		res.Reason = reason
		res.Elapsed = opts.Now().Sub(start)
		return res
	}

	for res.Iterations < opts.MaxIterations {
		if ctx.Err() != nil {
			return finish(StopCanceled), nil
		}
		batch, err := p.CurrentBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StopCanceled), nil
			}
			return finish(""), domain.Wrap(domain.ErrNavigation, err, "read current batch")
		}
		res.Iterations++

		added := 0
		for _, item := range batch {
			id, err := readItem(item)
			if err != nil {
				res.ItemErrors = append(res.ItemErrors, err)
				continue
			}
			key := participants.Key(id)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			res.Identifiers = append(res.Identifiers, id)
			added++
			if opts.Observer != nil {
				opts.Observer.IdentifierFound(IdentifierEvent{Identifier: id, Total: len(res.Identifiers)})
			}
		}
		if opts.Observer != nil {
			opts.Observer.IterationDone(IterationEvent{
				Iteration: res.Iterations,
				New:       added,
				Total:     len(res.Identifiers),
				Elapsed:   opts.Now().Sub(start),
			})
		}

		if added == 0 {
			stalled++
			if stalled >= opts.StallLimit {
				return finish(StopConverged), incomplete(p, StopConverged)
			}
		} else {
			stalled = 0
		}
		if res.Iterations >= opts.MaxIterations {
			break
		}

		more, err := p.RevealMore(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StopCanceled), nil
			}
			return finish(""), domain.Wrap(domain.ErrNavigation, err, "reveal more content")
		}
		if !more {
			return finish(StopExhausted), nil
		}
	}
	return finish(StopMaxIterations), incomplete(p, StopMaxIterations)
}

func incomplete(p Provider, reason StopReason) error {
	f, ok := p.(Finite)
	if !ok {
		return nil
	}
	if n := f.Unread(); n > 0 {
		return domain.Errorf(domain.ErrConfiguration,
			"source stopped (%s) with %d entries unread; raise extraction.max_iterations or extraction.stall_limit, or set extraction.batch_size to 0", reason, n)
	}
	return nil
}

func readItem(item RawItem) (string, error) {
	if item == nil {
		return "", errMalformed
	}
	id, err := item.Identifier()
	if err != nil {
		return "", err
	}
	id = participants.Display(id)
	if id == "" || strings.Contains(id, "/") {
		return "", errMalformed
	}
	return id, nil
}

// Item is a RawItem whose identifier is already known.
type Item string

func (i Item) Identifier() (string, error) { return string(i), nil }

// FailedItem is a RawItem that could not be read.
type FailedItem struct{ Err error }

func (f FailedItem) Identifier() (string, error) { return "", f.Err }
