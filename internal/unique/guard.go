// Package unique issues identifiers that are unique across the persistent namespace.
//
// Candidates are generated, checked against the store and, optionally, committed.
// The store's unique indexes are the final authority: a commit that loses a race
// reports errs.ErrCollision and the guard retries with a fresh candidate.
package unique

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/accountd/internal/errs"
)

// DefaultMaxAttempts bounds the generate/check loop.
const DefaultMaxAttempts = 1000

// Recorder observes issuance outcomes.
type Recorder interface {
	Collision(kind string)
	Issued(kind string, attempts int)
	Exhausted(kind string)
}

type nopRecorder struct{}

func (nopRecorder) Collision(string)   {}
func (nopRecorder) Issued(string, int) {}
func (nopRecorder) Exhausted(string)   {}

// Guard holds the retry policy shared by all issuance kinds.
type Guard struct {
	maxAttempts int
	log         *zap.Logger
	rec         Recorder
}

// Option configures a Guard.
type Option func(*Guard)

// WithMaxAttempts sets the retry ceiling. Non-positive values keep the default.
func WithMaxAttempts(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(g *Guard) {
		if log != nil {
			g.log = log
		}
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Guard) {
		if r != nil {
			g.rec = r
		}
	}
}

// New constructs a Guard.
func New(opts ...Option) *Guard {
	g := &Guard{maxAttempts: DefaultMaxAttempts, log: zap.NewNop(), rec: nopRecorder{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxAttempts returns the retry ceiling.
func (g *Guard) MaxAttempts() int { return g.maxAttempts }

// Spec describes one issuance.
type Spec[T any] struct {
	// Kind names the namespace for logs, metrics and errors ("pid", "email_token", ...).
	Kind string
	// Generate returns a fresh candidate. Required.
	Generate func() (T, error)
	// Exists reports whether the candidate is already taken. Optional.
	Exists func(ctx context.Context, candidate T) (bool, error)
	// Commit claims the candidate. It returns an error matching errs.ErrCollision when
	// the candidate was claimed concurrently. Optional.
	Commit func(ctx context.Context, candidate T) error
}

// Issue runs the generate/check/commit loop until a candidate is accepted, the
// attempt ceiling is reached or ctx is done.
func Issue[T any](ctx context.Context, g *Guard, s Spec[T]) (T, error) {
	var zero T
	if s.Generate == nil {
		return zero, fmt.Errorf("unique %s: %w: nil generator", s.Kind, errs.ErrInvalidInput)
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		candidate, err := s.Generate()
		if err != nil {
			return zero, fmt.Errorf("unique %s: generate: %w", s.Kind, err)
		}

		if s.Exists != nil {
			taken, err := s.Exists(ctx, candidate)
			if err != nil {
				if errors.Is(err, errs.ErrStoreUnavailable) {
					return zero, fmt.Errorf("unique %s: %w", s.Kind, err)
				}
				return zero, errs.Store("unique "+s.Kind, err)
			}
			if taken {
				g.collision(s.Kind, attempt)
				continue
			}
		}

		if s.Commit != nil {
			if err := s.Commit(ctx, candidate); err != nil {
				if errors.Is(err, errs.ErrCollision) {
					g.collision(s.Kind, attempt)
					continue
				}
				return zero, err
			}
		}

		g.rec.Issued(s.Kind, attempt)
		return candidate, nil
	}

	g.rec.Exhausted(s.Kind)
	g.log.Warn("identifier namespace exhausted",
		zap.String("kind", s.Kind),
		zap.Int("attempts", g.maxAttempts),
	)
	return zero, fmt.Errorf("unique %s: %w after %d attempts", s.Kind, errs.ErrGenerationExhausted, g.maxAttempts)
}

func (g *Guard) collision(kind string, attempt int) {
	g.rec.Collision(kind)
	g.log.Debug("identifier collision", zap.String("kind", kind), zap.Int("attempt", attempt))
}
