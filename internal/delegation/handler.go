package delegation

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/deposit"
	"github.com/congo-pay/deposit_ledger/internal/middleware"
)

// Handler exposes delegation endpoints.
type Handler struct {
	bridge *Bridge
}

// NewHandler constructs a delegation handler.
func NewHandler(bridge *Bridge) *Handler {
	return &Handler{bridge: bridge}
}

// Delegate moves the entry in the path to the execution layer.
func (h *Handler) Delegate(c *fiber.Ctx) error {
	owner, asset, err := deposit.ParseEntryParams(c)
	if err != nil {
		return err
	}
	if err := h.bridge.Delegate(c.UserContext(), owner, asset); err != nil {
		return err
	}
	return h.state(c)
}

// Undelegate commits the entry in the path back to the base layer.
func (h *Handler) Undelegate(c *fiber.Ctx) error {
	owner, asset, err := deposit.ParseEntryParams(c)
	if err != nil {
		return err
	}
	if err := h.bridge.Undelegate(c.UserContext(), middleware.SignerFrom(c), owner, asset); err != nil {
		return err
	}
	return h.state(c)
}

func (h *Handler) state(c *fiber.Ctx) error {
	owner, asset, err := deposit.ParseEntryParams(c)
	if err != nil {
		return err
	}
	state, err := h.bridge.State(c.UserContext(), owner, asset)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"state": state})
}
