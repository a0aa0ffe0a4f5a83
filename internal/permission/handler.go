package permission

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/deposit"
	"github.com/congo-pay/deposit_ledger/internal/key"
)

// Handler exposes permission issuance.
type Handler struct {
	bridge *Bridge
}

// NewHandler constructs a permission handler.
func NewHandler(bridge *Bridge) *Handler {
	return &Handler{bridge: bridge}
}

type createRequest struct {
	Group key.Key `json:"group_id"`
}

// Create issues a group and permission over the entry in the path.
func (h *Handler) Create(c *fiber.Ctx) error {
	owner, asset, err := deposit.ParseEntryParams(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Group.IsZero() {
		return fiber.NewError(http.StatusBadRequest, "group_id is required")
	}

	grant, err := h.bridge.CreatePermission(c.UserContext(), owner, asset, req.Group)
	if err != nil {
		return err
	}
	members := make([]string, 0, len(grant.Members))
	for _, m := range grant.Members {
		members = append(members, m.String())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"group_id": grant.Group.String(),
		"account":  grant.Account.String(),
		"members":  members,
	})
}
