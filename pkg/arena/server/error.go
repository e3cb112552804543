package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/arena"
)

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Message string `json:"message"`
}

// statusCode maps an arena error to its HTTP status.
func statusCode(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch {
	case eris.Is(err, arena.ErrMatchNotFound),
		eris.Is(err, arena.ErrUnitNotFound),
		eris.Is(err, arena.ErrPlayerNotFound):
		return fiber.StatusNotFound
	case eris.Is(err, arena.ErrNotParticipant),
		eris.Is(err, arena.ErrNotOwner):
		return fiber.StatusForbidden
	case eris.Is(err, arena.ErrAlreadyInMatch),
		eris.Is(err, arena.ErrInvalidPhase):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := statusCode(err)

	message := err.Error()
	if code == fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg(eris.ToString(err, true))
		message = "internal server error"
	}
	return c.Status(code).JSON(ErrorResponse{Error: Error{Message: message}})
}
