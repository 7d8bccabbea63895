// Package actions is the command boundary: actions are built from JSON input
// by kind, validated, then executed against the volume manager.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"voltrack/internal/library"
	"voltrack/internal/manager"
	"voltrack/internal/volume"
)

// ErrorKind classifies action failures for callers.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindInvalidInput ErrorKind = "invalid_input"
	KindInternal     ErrorKind = "internal"
)

// ActionError is the error every action returns.
type ActionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func invalidInput(format string, args ...any) *ActionError {
	return &ActionError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// FromError maps a domain error onto an ActionError. Internal failures carry
// a fixed message; the cause is only logged.
func FromError(err error) *ActionError {
	if err == nil {
		return nil
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, volume.ErrNotFound) {
		return &ActionError{Kind: KindNotFound, Message: err.Error()}
	}
	return &ActionError{Kind: KindInternal, Message: "internal error"}
}

// Volumes is the part of the volume manager actions use.
type Volumes interface {
	GetAllVolumes() []*volume.Volume
	Refresh(ctx context.Context) (manager.Changes, error)
	TrackVolume(ctx context.Context, lib *library.Library, id uuid.UUID) (*volume.Volume, error)
	UntrackVolumeByID(ctx context.Context, lib *library.Library, id uuid.UUID) error
	ResolvePath(ctx context.Context, path string) (string, *volume.Volume, error)
	CopyStrategyFor(ctx context.Context, src, dst string) manager.CopyPlan
	CloneVolumes(ctx context.Context) []*volume.Volume
}

// Env is what actions execute against.
type Env struct {
	Volumes   Volumes
	Libraries *library.Store
	// DefaultLibrary names the library used when input names none.
	DefaultLibrary string
}

// library resolves the library an action targets.
func (e *Env) library(ctx context.Context, id *uuid.UUID) (*library.Library, error) {
	if id != nil {
		return e.Libraries.Get(ctx, *id)
	}
	if e.DefaultLibrary == "" {
		return nil, invalidInput("library_id is required")
	}
	return e.Libraries.Ensure(ctx, e.DefaultLibrary)
}

// Action is a validated, ready-to-run action.
type Action interface {
	Kind() string
	Execute(ctx context.Context, env *Env) (any, error)
}

// Builder validates JSON input and builds an action.
type Builder func(input json.RawMessage) (Action, error)

// Registry maps action kinds to builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register installs b for kind, replacing any previous builder.
func (r *Registry) Register(kind string, b Builder) {
	r.mu.Lock()
	r.builders[kind] = b
	r.mu.Unlock()
}

// Kinds lists the registered kinds in order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.builders))
	for k := range r.builders {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Build validates input for kind.
func (r *Registry) Build(kind string, input json.RawMessage) (Action, error) {
	r.mu.RLock()
	b, ok := r.builders[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, invalidInput("unknown action %q", kind)
	}
	a, err := b(input)
	if err != nil {
		return nil, FromError(err)
	}
	return a, nil
}

// Dispatch builds and executes an action. Every error is an *ActionError.
func (r *Registry) Dispatch(ctx context.Context, env *Env, kind string, input json.RawMessage) (any, error) {
	a, err := r.Build(kind, input)
	if err != nil {
		return nil, err
	}
	out, err := a.Execute(ctx, env)
	if err != nil {
		ae := FromError(err)
		ev := log.Ctx(ctx).Warn()
		if ae.Kind == KindInternal {
			ev = log.Ctx(ctx).Error()
		}
		ev.Err(err).Str("action", kind).Msg("action failed")
		return nil, ae
	}
	return out, nil
}

// decode unmarshals optional JSON input into dst.
func decode(input json.RawMessage, dst any) error {
	if len(input) == 0 || string(input) == "null" {
		return nil
	}
	if err := json.Unmarshal(input, dst); err != nil {
		return invalidInput("malformed input: %v", err)
	}
	return nil
}

// DefaultRegistry returns a registry with every volume action installed.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindTrack, buildTrack)
	r.Register(KindUntrack, buildUntrack)
	r.Register(KindList, buildList)
	r.Register(KindDetect, buildDetect)
	r.Register(KindResolve, buildResolve)
	r.Register(KindCopyStrategy, buildCopyStrategy)
	return r
}
