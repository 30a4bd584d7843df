package middleware

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrContinuationReused is returned when a stage calls its continuation a
// second time. Downstream stages and the handler do not run again.
var ErrContinuationReused = errors.New("middleware: continuation called more than once")

// Handler handles an invocation. The result type depends on the kind of
// invocation and is opaque to the chain.
type Handler func(ctx context.Context, inv *Invocation) (any, error)

// Stage intercepts an invocation. A stage may modify the invocation state
// before calling next, must call next at most once, and must return the
// error from next unless it replaces it with a more specific one.
// Not calling next short-circuits the chain.
type Stage interface {
	Handle(ctx context.Context, inv *Invocation, next Handler) (any, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(ctx context.Context, inv *Invocation, next Handler) (any, error)

// Handle implements Stage.
func (f StageFunc) Handle(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	return f(ctx, inv, next)
}

// Chain is an immutable ordered list of stages. It is safe for concurrent use.
type Chain struct {
	stages []Stage
}

// NewChain creates a chain. The first stage is the outermost. Nil stages
// are skipped.
func NewChain(stages ...Stage) *Chain {
	c := &Chain{stages: make([]Stage, 0, len(stages))}
	for _, s := range stages {
		if s != nil {
			c.stages = append(c.stages, s)
		}
	}
	return c
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.stages)
}

// Then returns a handler that runs h behind the chain.
func (c *Chain) Then(h Handler) Handler {
	return func(ctx context.Context, inv *Invocation) (any, error) {
		return c.Execute(ctx, inv, h)
	}
}

// Execute runs inv through the stages and finally h. The invocation is
// attached to the context seen by every stage and by h.
func (c *Chain) Execute(ctx context.Context, inv *Invocation, h Handler) (any, error) {
	ctx = WithInvocation(ctx, inv)
	next := h
	if c != nil {
		for i := len(c.stages) - 1; i >= 0; i-- {
			next = link(c.stages[i], once(next))
		}
	}
	return next(ctx, inv)
}

func link(stage Stage, next Handler) Handler {
	return func(ctx context.Context, inv *Invocation) (any, error) {
		return stage.Handle(ctx, inv, next)
	}
}

func once(next Handler) Handler {
	var called atomic.Bool
	return func(ctx context.Context, inv *Invocation) (any, error) {
		if !called.CompareAndSwap(false, true) {
			return nil, ErrContinuationReused
		}
		return next(ctx, inv)
	}
}
