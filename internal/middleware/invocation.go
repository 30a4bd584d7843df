package middleware

import (
	"context"
	"sync"
)

// Kind classifies an invocation.
type Kind string

const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

// StateUserID is the state key holding the authenticated user identifier.
const StateUserID = "user_id"

// Invocation is the request-scoped context shared by all stages of a chain.
type Invocation struct {
	// Method is the MCP method, e.g. "tools/call". Stages fill in the default
	// for the kind when it is empty.
	Method string
	// Target is the tool name, resource URI or prompt name.
	Target string
	Kind   Kind
	// Arguments holds tool or prompt arguments. It may be nil.
	Arguments map[string]any

	mu    sync.RWMutex
	state map[string]any
}

// NewInvocation creates an invocation with empty state.
func NewInvocation(kind Kind, method, target string, args map[string]any) *Invocation {
	return &Invocation{
		Kind:      kind,
		Method:    method,
		Target:    target,
		Arguments: args,
		state:     make(map[string]any),
	}
}

// SetState stores a value under key.
func (i *Invocation) SetState(key string, value any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == nil {
		i.state = make(map[string]any)
	}
	i.state[key] = value
}

// State returns the value stored under key.
func (i *Invocation) State(key string) (any, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.state[key]
	return v, ok
}

// StateString returns the string stored under key, or "".
func (i *Invocation) StateString(key string) string {
	v, ok := i.State(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

type invocationKey struct{}

// WithInvocation returns a context carrying inv.
func WithInvocation(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// FromContext returns the invocation carried by ctx.
func FromContext(ctx context.Context) (*Invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(*Invocation)
	return inv, ok && inv != nil
}

// UserID returns the user resolved by the auth stage, or "" if the request
// is unauthenticated or did not pass through a chain.
func UserID(ctx context.Context) string {
	inv, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return inv.StateString(StateUserID)
}
