// Package syncable defines the contract shared models implement to take part
// in multi-device sync, and a registry of the participating models.
package syncable

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeType is the kind of a replicated change.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// SharedChange is one change received from another device.
type SharedChange struct {
	Model      string          `json:"model"`
	RecordUUID uuid.UUID       `json:"record_uuid"`
	ChangeType ChangeType      `json:"change_type"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Cursor is the pagination position of a sync query. Records are ordered by
// creation time with the uuid breaking ties.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	UUID      uuid.UUID `json:"uuid"`
}

// Query selects a batch of records to send to a peer.
type Query struct {
	DeviceID *uuid.UUID
	Since    *time.Time
	After    *Cursor
	Limit    int
}

// Record is one row prepared for sync.
type Record struct {
	UUID      uuid.UUID       `json:"uuid"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// Cursor returns the position just after r.
func (r Record) Cursor() Cursor {
	return Cursor{CreatedAt: r.CreatedAt, UUID: r.UUID}
}

// Syncable is implemented by every shared model.
type Syncable interface {
	// Model is the wire name of the model.
	Model() string
	// Table is the local table holding the model.
	Table() string
	// ExcludeFields lists local-only fields stripped from sync payloads.
	ExcludeFields() []string
	// DependsOn lists models that must be applied before this one.
	DependsOn() []string

	LookupID(ctx context.Context, id uuid.UUID) (int64, bool, error)
	LookupUUID(ctx context.Context, id int64) (uuid.UUID, bool, error)
	LookupIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error)
	LookupUUIDs(ctx context.Context, ids []int64) (map[int64]uuid.UUID, error)

	QueryForSync(ctx context.Context, q Query) ([]Record, error)
	// ApplySharedChange applies a change idempotently.
	ApplySharedChange(ctx context.Context, change SharedChange) error
}

// Registry holds the sync participants by model name.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Syncable
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Syncable)}
}

// Register adds s. Registering a model name twice is an error.
func (r *Registry) Register(s Syncable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[s.Model()]; ok {
		return fmt.Errorf("syncable: model %q already registered", s.Model())
	}
	r.models[s.Model()] = s
	return nil
}

// Get returns the participant for model.
func (r *Registry) Get(model string) (Syncable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.models[model]
	return s, ok
}

// Apply routes a change to its model.
func (r *Registry) Apply(ctx context.Context, change SharedChange) error {
	s, ok := r.Get(change.Model)
	if !ok {
		return fmt.Errorf("syncable: unknown model %q", change.Model)
	}
	return s.ApplySharedChange(ctx, change)
}

// Order returns the registered model names so that every model comes after
// the models it depends on. Dependencies on unregistered models are ignored.
func (r *Registry) Order() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	out := make([]string, 0, len(names))
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("syncable: dependency cycle at %q", name)
		case done:
			return nil
		}
		state[name] = visiting
		deps := slices.Clone(r.models[name].DependsOn())
		slices.Sort(deps)
		for _, dep := range deps {
			if _, ok := r.models[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		out = append(out, name)
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// StripFields encodes v as a JSON object without the named fields.
func StripFields(v any, exclude []string) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(exclude) == 0 {
		return raw, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("syncable: payload is not an object: %w", err)
	}
	for _, f := range exclude {
		delete(obj, f)
	}
	return json.Marshal(obj)
}
