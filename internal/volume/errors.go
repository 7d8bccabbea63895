package volume

import (
	"errors"
	"fmt"
)

// ErrorKind classifies volume subsystem failures.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindPlatform
	KindTaskJoin
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPlatform:
		return "platform"
	case KindTaskJoin:
		return "task_join"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is.
var (
	ErrNotFound = errors.New("volume not found")
	ErrPlatform = errors.New("platform error")
	ErrTaskJoin = errors.New("background task failed")
	ErrInternal = errors.New("internal error")
)

// Error is the error type returned by the volume subsystem.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.sentinel().Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind. A task-join failure is a
// platform failure as well.
func (e *Error) Is(target error) bool {
	if target == e.sentinel() {
		return true
	}
	return e.Kind == KindTaskJoin && target == ErrPlatform
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindNotFound:
		return ErrNotFound
	case KindPlatform:
		return ErrPlatform
	case KindTaskJoin:
		return ErrTaskJoin
	default:
		return ErrInternal
	}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Platform(op string, err error) error {
	return &Error{Kind: KindPlatform, Op: op, Err: err}
}

func TaskJoin(op string, err error) error {
	return &Error{Kind: KindTaskJoin, Op: op, Err: err}
}

func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

