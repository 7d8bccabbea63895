package filesystem

import (
	"voltrack/internal/volume"
	"voltrack/internal/worker"
)

// Registry maps filesystems to their handler. Filesystems without an entry
// use the generic handler.
type Registry struct {
	handlers map[volume.FileSystem]Handler
	fallback Handler
}

// NewRegistry builds the standard dispatch table. Each clone-capable
// filesystem gets its own handler and cache.
func NewRegistry(prober Prober, pool *worker.Pool) *Registry {
	r := &Registry{
		handlers: make(map[volume.FileSystem]Handler),
		fallback: NewGenericHandler(prober, pool),
	}
	r.Register(volume.FSNTFS, NewNTFSHandler(prober, pool))
	for _, fs := range []volume.FileSystem{volume.FSReFS, volume.FSAPFS, volume.FSBtrfs} {
		r.Register(fs, NewCloneHandler(fs, prober, pool, NewCloneCache()))
	}
	return r
}

// Register installs h for fs, replacing any previous handler.
func (r *Registry) Register(fs volume.FileSystem, h Handler) {
	r.handlers[fs] = h
}

// For returns the handler for fs.
func (r *Registry) For(fs volume.FileSystem) Handler {
	if h, ok := r.handlers[fs]; ok {
		return h
	}
	return r.fallback
}

// Default returns the platform-native handler.
func (r *Registry) Default() Handler { return r.fallback }
