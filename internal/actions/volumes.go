package actions

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"voltrack/internal/volume"
)

const (
	KindTrack        = "volumes.track"
	KindUntrack      = "volumes.untrack"
	KindList         = "volumes.list"
	KindDetect       = "volumes.detect"
	KindResolve      = "volumes.resolve"
	KindCopyStrategy = "volumes.copy_strategy"
)

// TrackInput selects the volume to track and, optionally, the library.
type TrackInput struct {
	VolumeID  uuid.UUID  `json:"volume_id"`
	LibraryID *uuid.UUID `json:"library_id,omitempty"`
}

// TrackOutput is the tracked volume.
type TrackOutput struct {
	Volume *volume.Volume `json:"volume"`
}

type trackAction struct{ in TrackInput }

func buildTrack(input json.RawMessage) (Action, error) {
	var in TrackInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.VolumeID == uuid.Nil {
		return nil, invalidInput("volume_id is required")
	}
	return &trackAction{in: in}, nil
}

func (a *trackAction) Kind() string { return KindTrack }

func (a *trackAction) Execute(ctx context.Context, env *Env) (any, error) {
	lib, err := env.library(ctx, a.in.LibraryID)
	if err != nil {
		return nil, err
	}
	v, err := env.Volumes.TrackVolume(ctx, lib, a.in.VolumeID)
	if err != nil {
		return nil, err
	}
	return TrackOutput{Volume: v}, nil
}

// UntrackInput selects the volume to untrack.
type UntrackInput struct {
	VolumeID  uuid.UUID  `json:"volume_id"`
	LibraryID *uuid.UUID `json:"library_id,omitempty"`
}

// UntrackOutput reports a completed untrack.
type UntrackOutput struct {
	VolumeID uuid.UUID `json:"volume_id"`
	Success  bool      `json:"success"`
}

type untrackAction struct{ in UntrackInput }

func buildUntrack(input json.RawMessage) (Action, error) {
	var in UntrackInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.VolumeID == uuid.Nil {
		return nil, invalidInput("volume_id is required")
	}
	return &untrackAction{in: in}, nil
}

func (a *untrackAction) Kind() string { return KindUntrack }

func (a *untrackAction) Execute(ctx context.Context, env *Env) (any, error) {
	lib, err := env.library(ctx, a.in.LibraryID)
	if err != nil {
		return nil, err
	}
	if err := env.Volumes.UntrackVolumeByID(ctx, lib, a.in.VolumeID); err != nil {
		return nil, err
	}
	return UntrackOutput{VolumeID: a.in.VolumeID, Success: true}, nil
}

// ListInput filters the volume listing.
type ListInput struct {
	TrackedOnly  bool       `json:"tracked_only,omitempty"`
	LibraryID    *uuid.UUID `json:"library_id,omitempty"`
	Type         string     `json:"type,omitempty"`
	CloneCapable bool       `json:"clone_capable,omitempty"`
}

// ListOutput is the filtered snapshot.
type ListOutput struct {
	Volumes []*volume.Volume `json:"volumes"`
}

type listAction struct{ in ListInput }

func buildList(input json.RawMessage) (Action, error) {
	var in ListInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	return &listAction{in: in}, nil
}

func (a *listAction) Kind() string { return KindList }

func (a *listAction) Execute(ctx context.Context, env *Env) (any, error) {
	vols := env.Volumes.GetAllVolumes()
	if a.in.CloneCapable {
		vols = env.Volumes.CloneVolumes(ctx)
	}
	out := ListOutput{Volumes: []*volume.Volume{}}
	for _, v := range vols {
		if a.in.TrackedOnly && !v.IsTracked {
			continue
		}
		if a.in.LibraryID != nil && (v.LibraryID == nil || *v.LibraryID != *a.in.LibraryID) {
			continue
		}
		if a.in.Type != "" && !strings.EqualFold(string(v.VolumeType), a.in.Type) {
			continue
		}
		out.Volumes = append(out.Volumes, v)
	}
	return out, nil
}

// DetectOutput summarizes a forced refresh.
type DetectOutput struct {
	Added   []*volume.Volume `json:"added"`
	Changed []*volume.Volume `json:"changed"`
	Removed []*volume.Volume `json:"removed"`
	Total   int              `json:"total"`
}

type detectAction struct{}

func buildDetect(input json.RawMessage) (Action, error) {
	var ignored struct{}
	if err := decode(input, &ignored); err != nil {
		return nil, err
	}
	return detectAction{}, nil
}

func (detectAction) Kind() string { return KindDetect }

func (detectAction) Execute(ctx context.Context, env *Env) (any, error) {
	changes, err := env.Volumes.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return DetectOutput{
		Added:   nonNil(changes.Added),
		Changed: nonNil(changes.Changed),
		Removed: nonNil(changes.Removed),
		Total:   len(env.Volumes.GetAllVolumes()),
	}, nil
}

func nonNil(v []*volume.Volume) []*volume.Volume {
	if v == nil {
		return []*volume.Volume{}
	}
	return v
}

// ResolveInput is a path to canonicalize.
type ResolveInput struct {
	Path string `json:"path"`
}

// ResolveOutput is the canonical path and the volume holding it.
type ResolveOutput struct {
	Path   string         `json:"path"`
	Volume *volume.Volume `json:"volume"`
}

type resolveAction struct{ in ResolveInput }

func buildResolve(input json.RawMessage) (Action, error) {
	var in ResolveInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Path) == "" {
		return nil, invalidInput("path is required")
	}
	return &resolveAction{in: in}, nil
}

func (a *resolveAction) Kind() string { return KindResolve }

func (a *resolveAction) Execute(ctx context.Context, env *Env) (any, error) {
	resolved, v, err := env.Volumes.ResolvePath(ctx, a.in.Path)
	if err != nil {
		return nil, err
	}
	return ResolveOutput{Path: resolved, Volume: v}, nil
}

// CopyStrategyInput is a source/destination pair.
type CopyStrategyInput struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

type copyStrategyAction struct{ in CopyStrategyInput }

func buildCopyStrategy(input json.RawMessage) (Action, error) {
	var in CopyStrategyInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Source == "" || in.Destination == "" {
		return nil, invalidInput("source and destination are required")
	}
	return &copyStrategyAction{in: in}, nil
}

func (a *copyStrategyAction) Kind() string { return KindCopyStrategy }

func (a *copyStrategyAction) Execute(ctx context.Context, env *Env) (any, error) {
	return env.Volumes.CopyStrategyFor(ctx, a.in.Source, a.in.Destination), nil
}
