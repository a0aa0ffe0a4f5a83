package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/permission"
)

// RegisterPermissionRoutes wires access control issuance.
func RegisterPermissionRoutes(r fiber.Router, h *permission.Handler) {
	r.Post("/deposits/:owner/:asset/permission", h.Create)
}
