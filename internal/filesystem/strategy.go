package filesystem

import "context"

// CopyMethod is the mechanism chosen for a single copy.
type CopyMethod string

const (
	MethodStream CopyMethod = "stream"
	MethodClone  CopyMethod = "clone"
)

// CopyStrategy selects a copy method for a source/destination pair.
type CopyStrategy interface {
	Name() string
	Plan(ctx context.Context, src, dst string) CopyMethod
}

// StreamCopy always reads and writes the bytes.
type StreamCopy struct{}

func (StreamCopy) Name() string { return "stream" }

func (StreamCopy) Plan(context.Context, string, string) CopyMethod { return MethodStream }

// CloneCopy clones blocks when both endpoints share a clone-capable volume
// and streams otherwise.
type CloneCopy struct {
	h *CloneHandler
}

func (c CloneCopy) Name() string { return "clone:" + string(c.h.fs) }

func (c CloneCopy) Plan(ctx context.Context, src, dst string) CopyMethod {
	if c.h.SamePhysicalStorage(ctx, src, dst) {
		return MethodClone
	}
	return MethodStream
}
