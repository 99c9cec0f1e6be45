package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/setlistfan/favsync/internal/favorite"
)

// Kind classifies a failed favorites call.
type Kind int

const (
	// KindUnauthenticated means no usable token; no request was sent.
	KindUnauthenticated Kind = iota + 1
	// KindNotFound means the target does not exist server-side.
	KindNotFound
	// KindConflict means the favorite already exists.
	KindConflict
	// KindNetwork covers transport failures and timeouts.
	KindNetwork
	// KindServer covers every other non-2xx or unreadable response.
	KindServer
)

// Sentinel errors matched by errors.Is against *Error.
var (
	ErrUnauthenticated = errors.New("not signed in")
	ErrNotFound        = errors.New("favorite target not found")
	ErrConflict        = errors.New("favorite already exists")
	ErrNetwork         = errors.New("network error or timeout")
	ErrServer          = errors.New("server error")
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindNetwork:
		return ErrNetwork
	case KindServer:
		return ErrServer
	default:
		return nil
	}
}

// Error is returned by every Client operation that fails.
type Error struct {
	Kind    Kind
	Op      string
	Target  favorite.Target
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	subject := e.Op
	if e.Target.Valid() {
		subject += " " + e.Target.String()
	}
	msg := e.Kind.sentinel().Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return subject + ": " + msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf returns the kind of a remote error.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}

// Retryable reports whether retrying the same call may succeed.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindNetwork
}

// kindForStatus maps a non-2xx status to a kind.
func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthenticated
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindServer
	}
}
