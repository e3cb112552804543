package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	"github.com/argus-labs/arena/pkg/arena/types"
)

const (
	// IdentityHeader carries the authenticated caller identity set by the gateway in front of the shard.
	IdentityHeader  = "X-Arena-Identity"
	RequestIDHeader = "X-Request-ID"

	localIdentity = "identity"
)

// requireIdentity rejects requests without a caller identity. Header values alias fasthttp's request buffer, so the
// identity is copied before it reaches the store.
func requireIdentity(c *fiber.Ctx) error {
	id := utils.CopyString(c.Get(IdentityHeader))
	if id == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing "+IdentityHeader+" header")
	}
	c.Locals(localIdentity, types.Identity(id))
	return c.Next()
}

func callerOf(c *fiber.Ctx) types.Identity {
	id, _ := c.Locals(localIdentity).(types.Identity)
	return id
}

// requestLogger tags every request with an id and logs it once it completes.
func (s *Server) requestLogger(c *fiber.Ctx) error {
	requestID := utils.CopyString(c.Get(RequestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(RequestIDHeader, requestID)

	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = statusCode(err)
	}
	s.log.Debug().
		Str("request_id", requestID).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Msg("request handled")
	return err
}
