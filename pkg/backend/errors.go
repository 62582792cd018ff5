package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/lakemap/pkg/provider"
)

// Kind classifies backend failures by how traversal should react to them.
type Kind string

const (
	// KindTransient failures affect one listing. Traversal records them on
	// the branch and continues with siblings.
	KindTransient Kind = "transient"

	// KindAuth failures (access denied, invalid credentials) abort a build.
	KindAuth Kind = "auth"

	// KindNotFound is a missing container or prefix. ListChildren never
	// returns it; ListContainers and Open may.
	KindNotFound Kind = "not_found"

	// KindCanceled is a canceled or timed-out context.
	KindCanceled Kind = "canceled"
)

// Error is a classified backend failure.
type Error struct {
	Kind      Kind
	Op        string
	Container string
	Prefix    string
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Container != "" && e.Prefix != "":
		return fmt.Sprintf("%s %s/%s (%s): %v", e.Op, e.Container, e.Prefix, e.Kind, e.Err)
	case e.Container != "":
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Container, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify returns the Kind for err. Unknown errors are transient.
func Classify(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case provider.IsAuth(err):
		return KindAuth
	case provider.IsMissing(err):
		return KindNotFound
	default:
		return KindTransient
	}
}

// IsAuth reports whether err is an authentication or authorization failure.
func IsAuth(err error) bool { return err != nil && Classify(err) == KindAuth }

// IsTransient reports whether err is a per-listing failure that traversal
// may tolerate.
func IsTransient(err error) bool { return err != nil && Classify(err) == KindTransient }

// IsCanceled reports whether err comes from context cancellation.
func IsCanceled(err error) bool { return err != nil && Classify(err) == KindCanceled }

func wrap(op, container, prefix string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Kind: Classify(err), Op: op, Container: container, Prefix: prefix, Err: err}
}
