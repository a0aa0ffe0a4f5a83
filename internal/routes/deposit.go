package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/deposit"
)

// RegisterDepositReadRoutes wires public entry lookups. They must be
// registered before the signed group so its middleware does not apply.
func RegisterDepositReadRoutes(r fiber.Router, h *deposit.Handler) {
	r.Get("/deposits/:owner/:asset", h.Get)
}

// RegisterDepositRoutes wires entry initialization.
func RegisterDepositRoutes(r fiber.Router, h *deposit.Handler) {
	r.Post("/deposits", h.Initialize)
}
