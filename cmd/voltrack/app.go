package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"voltrack/internal/actions"
	"voltrack/internal/config"
	"voltrack/internal/db"
	"voltrack/internal/device"
	"voltrack/internal/events"
	"voltrack/internal/filesystem"
	"voltrack/internal/library"
	"voltrack/internal/manager"
	"voltrack/internal/platform"
	"voltrack/internal/syncable"
	"voltrack/internal/volume"
	"voltrack/internal/worker"
)

// app is the wired runtime shared by every command.
type app struct {
	cfg      *config.Config
	conn     *sql.DB
	bus      *events.Bus
	manager  *manager.Manager
	library  *library.Library
	env      *actions.Env
	registry *actions.Registry
	sync     *syncable.Registry
}

// newApp opens storage, builds the manager and runs the first detection
// pass.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	deviceID, err := device.LoadOrCreate(cfg.DataDir, cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	libs := library.NewStore(conn)
	lib, err := libs.Ensure(ctx, cfg.Library)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open library %q: %w", cfg.Library, err)
	}

	syncReg := syncable.NewRegistry()
	if err := syncReg.Register(syncable.NewMimeTypes(conn)); err != nil {
		conn.Close()
		return nil, err
	}

	pool := worker.New(cfg.Workers, cfg.ProbeTimeout)
	bus := events.NewBus()
	detector := platform.NewDetector(
		platform.NativeEnumerator(),
		volume.NewPathClassifier(cfg.Policy()),
		volume.FileMarkers{},
		pool,
	)
	mgr := manager.New(manager.Options{
		DeviceID:       deviceID,
		Detection:      cfg.Detection,
		Detector:       detector,
		Handlers:       filesystem.NewRegistry(filesystem.NativeProber(), pool),
		Bus:            bus,
		Pool:           pool,
		EnhanceWorkers: cfg.EnhanceWorkers,
	})
	mgr.AttachLibrary(lib)

	if err := mgr.Initialize(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		conn:     conn,
		bus:      bus,
		manager:  mgr,
		library:  lib,
		env:      &actions.Env{Volumes: mgr, Libraries: libs, DefaultLibrary: lib.Name},
		registry: actions.DefaultRegistry(),
		sync:     syncReg,
	}, nil
}

func (a *app) Close() error {
	return a.conn.Close()
}

// dispatch runs an action and returns its output.
func (a *app) dispatch(ctx context.Context, kind string, input any) (any, error) {
	raw, err := jsonInput(input)
	if err != nil {
		return nil, err
	}
	return a.registry.Dispatch(ctx, a.env, kind, raw)
}

// lookupVolume accepts a volume id, a fingerprint or a path on the volume.
func (a *app) lookupVolume(arg string) (*volume.Volume, error) {
	if id, err := uuid.Parse(arg); err == nil {
		return a.manager.GetVolume(id)
	}
	if fp, err := volume.ParseFingerprint(arg); err == nil {
		return a.manager.GetVolumeByFingerprint(fp)
	}
	return a.manager.VolumeForPath(arg)
}
