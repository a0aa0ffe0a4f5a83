package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/payments"
)

// RegisterPaymentRoutes wires entry-to-entry transfers.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/deposits/:owner/:asset/transfer", h.Transfer)
}
