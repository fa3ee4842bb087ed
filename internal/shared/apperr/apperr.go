package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Sentinel errors returned by the core services. Handlers translate them
// with StatusCode; services wrap them with context via fmt.Errorf("...: %w").
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidRoute    = errors.New("route has no coordinates")
	ErrAlreadyPending  = errors.New("team request already pending")
	ErrSelfRequest     = errors.New("cannot send a team request to yourself")
	ErrNotRecipient    = errors.New("only the recipient can respond")
	ErrNotParticipant  = errors.New("runner is not a session participant")
	ErrSessionEnded    = errors.New("session has ended")
)

// StatusCode maps a service error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSessionEnded):
		return fiber.StatusNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidRoute):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrAlreadyPending), errors.Is(err, ErrSelfRequest):
		return fiber.StatusConflict
	case errors.Is(err, ErrNotRecipient), errors.Is(err, ErrNotParticipant):
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

// Fiber converts a service error into a fiber error for handler returns.
func Fiber(err error) error {
	return fiber.NewError(StatusCode(err), err.Error())
}
