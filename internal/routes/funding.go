package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/funding"
)

// RegisterFundingRoutes wires deposit and withdrawal.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/deposits/:owner/:asset/balance", h.ModifyBalance)
}
