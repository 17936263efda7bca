package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-genart-backend/internal/keypool"
)

// ErrMaxRetriesExceeded is returned after every attempt in the budget failed.
var ErrMaxRetriesExceeded = errors.New("imagegen: max retries exceeded")

// Default back-off delays.
const (
	DefaultShortDelay = 1 * time.Second
	DefaultLongDelay  = 5 * time.Second
)

// Retrier drives a Generator across the credentials of a Pool.
//
// Every failed attempt rotates to the next credential. Rate-limited, empty
// and failed attempts rotate first and then wait ShortDelay; unavailable
// attempts wait LongDelay first and then rotate. The loop stops after
// MaxAttempts attempts, or 2x the pool size when MaxAttempts is zero.
type Retrier struct {
	Pool      *keypool.Pool
	Generator Generator

	MaxAttempts int
	ShortDelay  time.Duration
	LongDelay   time.Duration

	// Sleep waits d or until ctx is done. Nil uses a timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zerolog.Logger
}

// NewRetrier builds a Retrier with default delays.
func NewRetrier(pool *keypool.Pool, gen Generator) *Retrier {
	return &Retrier{
		Pool:       pool,
		Generator:  gen,
		ShortDelay: DefaultShortDelay,
		LongDelay:  DefaultLongDelay,
	}
}

// Budget returns the effective attempt budget.
func (r *Retrier) Budget() int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return 2 * r.Pool.Len()
}

// Generate returns the first successful image for prompt. It fails with
// keypool.ErrNoCredentials without calling the generator when the pool is
// empty, with ErrMaxRetriesExceeded when the budget runs out, and with
// ctx.Err() when ctx is cancelled during a wait.
func (r *Retrier) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if r.Pool == nil || r.Pool.Len() == 0 {
		return nil, keypool.ErrNoCredentials
	}
	lg := r.logger()
	budget := r.Budget()

	cred, err := r.Pool.Current(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out := r.Generator.Generate(ctx, prompt, cred)
		generationAttempts.WithLabelValues(out.Status.String()).Inc()

		ev := lg.Debug()
		if out.Status != StatusSuccess {
			ev = lg.Warn()
		}
		ev.Int("attempt", attempt).
			Int("budget", budget).
			Str("credential", cred.Name).
			Str("outcome", out.Status.String()).
			AnErr("cause", out.Err).
			Msg("generation attempt")

		if out.Status == StatusSuccess {
			return out.Image, nil
		}
		last := attempt == budget

		switch out.Status {
		case StatusUnavailable:
			if !last {
				if err := r.sleep(ctx, r.LongDelay); err != nil {
					return nil, err
				}
			}
			if cred, err = r.advance(ctx); err != nil {
				return nil, err
			}
		default:
			if cred, err = r.advance(ctx); err != nil {
				return nil, err
			}
			if !last {
				if err := r.sleep(ctx, r.ShortDelay); err != nil {
					return nil, err
				}
			}
		}
	}

	lg.Error().Int("budget", budget).Msg("generation retries exhausted")
	return nil, fmt.Errorf("%w after %d attempts", ErrMaxRetriesExceeded, budget)
}

func (r *Retrier) advance(ctx context.Context) (keypool.Credential, error) {
	cred, err := r.Pool.Advance(ctx)
	if err != nil {
		return keypool.Credential{}, err
	}
	keyRotations.Inc()
	return cred, nil
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Retrier) logger() *zerolog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	l := log.With().Str("component", "imagegen").Logger()
	return &l
}
