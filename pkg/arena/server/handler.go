package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/argus-labs/arena/pkg/arena"
	"github.com/argus-labs/arena/pkg/arena/types"
	"github.com/argus-labs/arena/pkg/codec"
)

type OKResponse struct {
	OK bool `json:"ok"`
}

type QueueResponse struct {
	Length int `json:"length"`
}

type HealthResponse struct {
	IsServerRunning bool `json:"isServerRunning"`
}

type AddItemRequest struct {
	ItemID     string `json:"item_id"`
	EquipIndex uint8  `json:"equip_index"`
}

type ReadyRequest struct {
	IsReady bool `json:"is_ready"`
}

type ResultRequest struct {
	CallerWon bool `json:"caller_won"`
}

func getHealth() func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		return c.JSON(HealthResponse{IsServerRunning: true})
	}
}

func postJoin(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		res, err := a.Join(c.UserContext(), callerOf(c))
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

func postLeave(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := a.Leave(c.UserContext(), callerOf(c)); err != nil {
			return err
		}
		return c.JSON(OKResponse{OK: true})
	}
}

func getQueue(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		n, err := a.QueueLength(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(QueueResponse{Length: n})
	}
}

func getPlayer(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		p, err := a.Player(c.UserContext(), callerOf(c))
		if err != nil {
			return err
		}
		return c.JSON(p)
	}
}

func getMatch(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		matchID, err := uintParam(c, "matchID")
		if err != nil {
			return err
		}
		m, err := a.Match(c.UserContext(), matchID, callerOf(c))
		if err != nil {
			return err
		}
		return c.JSON(m)
	}
}

func getBoard(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		matchID, err := uintParam(c, "matchID")
		if err != nil {
			return err
		}
		board, err := a.Board(c.UserContext(), matchID, callerOf(c))
		if err != nil {
			return err
		}
		return c.JSON(board)
	}
}

func postBoard(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		matchID, err := uintParam(c, "matchID")
		if err != nil {
			return err
		}
		placement, err := parseBody[types.UnitPlacement](c)
		if err != nil {
			return err
		}
		if placement.UnitName == "" {
			return fiber.NewError(fiber.StatusBadRequest, "unit_name is required")
		}
		unit, err := a.UpdateBoard(c.UserContext(), matchID, callerOf(c), placement)
		if err != nil {
			return err
		}
		return c.JSON(unit)
	}
}

func deleteBoard(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		matchID, err := uintParam(c, "matchID")
		if err != nil {
			return err
		}
		if err := a.ClearBoard(c.UserContext(), matchID, callerOf(c)); err != nil {
			return err
		}
		return c.JSON(OKResponse{OK: true})
	}
}

func postItem(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		unitID, err := uintParam(c, "unitID")
		if err != nil {
			return err
		}
		req, err := parseBody[AddItemRequest](c)
		if err != nil {
			return err
		}
		if req.ItemID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "item_id is required")
		}
		item, err := a.AddItem(c.UserContext(), unitID, callerOf(c), req.ItemID, req.EquipIndex)
		if err != nil {
			return err
		}
		return c.JSON(item)
	}
}

func postReady(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		matchID, err := uintParam(c, "matchID")
		if err != nil {
			return err
		}
		req, err := parseBody[ReadyRequest](c)
		if err != nil {
			return err
		}
		m, err := a.MarkReady(c.UserContext(), matchID, callerOf(c), req.IsReady)
		if err != nil {
			return err
		}
		return c.JSON(m)
	}
}

func postResult(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		matchID, err := uintParam(c, "matchID")
		if err != nil {
			return err
		}
		req, err := parseBody[ResultRequest](c)
		if err != nil {
			return err
		}
		if err := a.SubmitResult(c.UserContext(), matchID, callerOf(c), req.CallerWon); err != nil {
			return err
		}
		return c.JSON(OKResponse{OK: true})
	}
}

func getResult(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		matchID, err := uintParam(c, "matchID")
		if err != nil {
			return err
		}
		r, err := a.Result(c.UserContext(), matchID, callerOf(c))
		if err != nil {
			return err
		}
		return c.JSON(r)
	}
}

func postForfeit(a *arena.Arena) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		matchID, err := uintParam(c, "matchID")
		if err != nil {
			return err
		}
		if err := a.Forfeit(c.UserContext(), matchID, callerOf(c)); err != nil {
			return err
		}
		return c.JSON(OKResponse{OK: true})
	}
}

func uintParam(c *fiber.Ctx, name string) (uint64, error) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name+": "+c.Params(name))
	}
	return v, nil
}

func parseBody[T any](c *fiber.Ctx) (T, error) {
	v, err := codec.Decode[T](c.Body())
	if err != nil {
		var zero T
		return zero, fiber.NewError(fiber.StatusBadRequest, "failed to parse request body: "+err.Error())
	}
	return v, nil
}
