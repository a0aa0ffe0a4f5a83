package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/delegation"
)

// RegisterDelegationRoutes wires the layer handoff endpoints.
func RegisterDelegationRoutes(r fiber.Router, h *delegation.Handler) {
	r.Post("/deposits/:owner/:asset/delegate", h.Delegate)
	r.Post("/deposits/:owner/:asset/undelegate", h.Undelegate)
}
