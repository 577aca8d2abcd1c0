package models

import "errors"

// Error taxonomy shared by every layer. Errors are wrapped with context and matched with
// errors.Is.
var (
	ErrNotFound        = errors.New("document not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrLoad            = errors.New("load failure")
	ErrRender          = errors.New("render failure")
	ErrEncode          = errors.New("encode failure")
	// ErrDispatch means the serving infrastructure is unhealthy: the pool is shut down or a
	// reply slot was closed without a value.
	ErrDispatch = errors.New("dispatch failure")
)

// ErrorKind returns a short stable name for the taxonomy member err belongs to.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrLoad):
		return "load"
	case errors.Is(err, ErrRender):
		return "render"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrDispatch):
		return "dispatch"
	}
	return "internal"
}
