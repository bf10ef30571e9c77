// Package pipeline provides the operator-chain mechanism shared by the
// retrieval and construction pipelines: typed context keys with presence
// tracking, lazy operator registration, and ordered execution with
// operator-tagged failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Key names one context field an operator reads or writes.
type Key string

// KeySet tracks which keys have been written during a run. Absence of a key
// means the producing channel was not requested, never an error by itself.
type KeySet map[Key]struct{}

// NewKeySet returns a set containing the given keys.
func NewKeySet(keys ...Key) KeySet {
	s := make(KeySet, len(keys))
	s.Mark(keys...)
	return s
}

// Mark records keys as present.
func (s KeySet) Mark(keys ...Key) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

// Has reports whether key has been written.
func (s KeySet) Has(key Key) bool {
	_, ok := s[key]
	return ok
}

// State is the shared context threaded through a chain run. Concrete states
// are plain structs; Keys exposes their presence tracking to the chain.
type State interface {
	Keys() KeySet
}

// Operator is one pipeline stage. Requires and Provides declare its read and
// write key sets up front, so a configured chain can be validated before
// anything executes. SkipWhenMissing is the operator's documented choice for
// a required key absent at run time: true short-circuits to a no-op, false
// fails the run with ErrMissingKey.
type Operator[S State] interface {
	Name() string
	Requires() []Key
	Provides() []Key
	SkipWhenMissing() bool
	Run(ctx context.Context, state S) error
}

// ErrMissingKey reports a hard-required context key absent at run time.
var ErrMissingKey = errors.New("required context key missing")

// OpError tags a failure with the operator that raised it and the operators
// that had already completed, so the caller can decide whether the partially
// populated state is still usable.
type OpError struct {
	Op        string
	Completed []string
	Err       error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("operator %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Chain executes operators in registration order against one shared state.
// Registration is lazy: nothing runs until Run.
type Chain[S State] struct {
	ops []Operator[S]
	log *zap.Logger
}

// NewChain creates an empty chain. A nil logger disables tracing.
func NewChain[S State](log *zap.Logger) *Chain[S] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chain[S]{log: log}
}

// Use registers operators at the end of the chain and returns the chain for
// call chaining.
func (c *Chain[S]) Use(ops ...Operator[S]) *Chain[S] {
	c.ops = append(c.ops, ops...)
	return c
}

// Len returns the number of registered operators.
func (c *Chain[S]) Len() int { return len(c.ops) }

// Validate statically checks the configured chain: every hard-requiring
// operator must have each required key either in the initial set or provided
// by an earlier operator. Requirements of skip-when-missing operators are not
// enforced, since their absence is a legal no-op at run time.
func (c *Chain[S]) Validate(initial ...Key) error {
	have := NewKeySet(initial...)
	for _, op := range c.ops {
		if !op.SkipWhenMissing() {
			for _, k := range op.Requires() {
				if !have.Has(k) {
					return fmt.Errorf("operator %s requires key %q which neither the initial context nor an earlier operator provides", op.Name(), k)
				}
			}
		}
		have.Mark(op.Provides()...)
	}
	return nil
}

// Run executes every registered operator in order against state. Each
// operator's Provides keys are marked after it succeeds. On failure the run
// stops and an *OpError is returned; keys already written remain readable in
// state, so partial results are not lost.
func (c *Chain[S]) Run(ctx context.Context, state S) (S, error) {
	completed := make([]string, 0, len(c.ops))
	for _, op := range c.ops {
		if err := ctx.Err(); err != nil {
			return state, &OpError{Op: op.Name(), Completed: completed, Err: err}
		}
		if missing := missingKeys(op, state); len(missing) > 0 {
			if op.SkipWhenMissing() {
				c.log.Debug("operator skipped",
					zap.String("operator", op.Name()),
					zap.Strings("missing", keyStrings(missing)))
				continue
			}
			return state, &OpError{
				Op:        op.Name(),
				Completed: completed,
				Err:       fmt.Errorf("%w: %v", ErrMissingKey, keyStrings(missing)),
			}
		}
		start := time.Now()
		if err := op.Run(ctx, state); err != nil {
			return state, &OpError{Op: op.Name(), Completed: completed, Err: err}
		}
		state.Keys().Mark(op.Provides()...)
		completed = append(completed, op.Name())
		c.log.Debug("operator done",
			zap.String("operator", op.Name()),
			zap.Duration("took", time.Since(start)))
	}
	return state, nil
}

func missingKeys[S State](op Operator[S], state S) []Key {
	var missing []Key
	for _, k := range op.Requires() {
		if !state.Keys().Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

func keyStrings(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
