package race

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dillydallydog/dogart/internal/domain"
)

// Producer is any candidate able to turn a photo into line art: an external
// provider adapter or the local deterministic filter.
type Producer interface {
	Name() string
	Render(ctx context.Context, src []byte) ([]byte, error)
}

// Result is the winning image together with the name of the candidate that
// produced it.
type Result struct {
	Producer string
	Image    []byte
}

// Race fans one normalized image out to every candidate at once and returns
// the first usable result. The deadline timer is a participant, not a
// canceller: when it fires the race resolves with the fallback producer's
// output, and in-flight provider calls are simply never observed.
type Race struct {
	Producers []Producer
	// Fallback names the producer whose output anchors the deadline. It
	// must be one of Producers and must not depend on the network.
	Fallback string
	Deadline time.Duration
	Logger   zerolog.Logger
}

type outcome struct {
	producer string
	image    []byte
	err      error
}

// Run launches every candidate concurrently and resolves exactly once.
//
// Before the deadline any successful candidate wins. After the deadline only
// the fallback's outcome is awaited; a provider success that happens to
// arrive while waiting still counts. The only fatal condition is every
// candidate failing, fallback included.
func (r Race) Run(ctx context.Context, src []byte) (Result, error) {
	if len(r.Producers) == 0 {
		return Result{}, fmt.Errorf("race: no producers configured: %w", domain.ErrRaceExhausted)
	}

	start := time.Now()
	// Buffered to the candidate count so late goroutines never block.
	results := make(chan outcome, len(r.Producers))
	for _, p := range r.Producers {
		go func(p Producer) {
			img, err := p.Render(ctx, src)
			results <- outcome{producer: p.Name(), image: img, err: err}
		}(p)
	}

	deadline := r.Deadline
	if deadline <= 0 {
		deadline = 6500 * time.Millisecond
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	var failures []error
	pending := len(r.Producers)
	fallbackDone := false
	pastDeadline := false

	for pending > 0 {
		select {
		case out := <-results:
			pending--
			if out.producer == r.Fallback {
				fallbackDone = true
			}
			if out.err != nil {
				r.Logger.Warn().
					Str("producer", out.producer).
					Dur("elapsed", time.Since(start)).
					Err(out.err).
					Msg("race: candidate failed")
				failures = append(failures, fmt.Errorf("%s: %w", out.producer, out.err))
				if pastDeadline && fallbackDone {
					return Result{}, fmt.Errorf("race: deadline passed and fallback failed: %w", errors.Join(append(failures, domain.ErrRaceExhausted)...))
				}
				continue
			}
			r.Logger.Info().
				Str("producer", out.producer).
				Dur("elapsed", time.Since(start)).
				Int("bytes", len(out.image)).
				Msg("race: winner")
			return Result{Producer: out.producer, Image: out.image}, nil
		case <-timer.C:
			pastDeadline = true
			if fallbackDone {
				// The fallback has already failed and nothing beat
				// the clock. Waiting on the remaining providers
				// would blow the proxy budget.
				return Result{}, fmt.Errorf("race: deadline passed and fallback failed: %w", errors.Join(append(failures, domain.ErrRaceExhausted)...))
			}
			r.Logger.Warn().
				Dur("deadline", deadline).
				Int("pending", pending).
				Msg("race: deadline fired, waiting on fallback")
		}
	}

	return Result{}, fmt.Errorf("race: %w: %w", domain.ErrRaceExhausted, errors.Join(failures...))
}
