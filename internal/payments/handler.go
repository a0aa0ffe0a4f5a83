package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/deposit"
	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/middleware"
)

// Handler exposes the transfer endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	Destination key.Key `json:"destination"`
	Amount      uint64  `json:"amount"`
}

// Transfer processes an entry-to-entry transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	owner, asset, err := deposit.ParseEntryParams(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		Signer:      middleware.SignerFrom(c),
		Owner:       owner,
		Asset:       asset,
		Destination: req.Destination,
		Amount:      req.Amount,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"source":              res.Source.String(),
		"destination":         res.Destination.String(),
		"source_balance":      res.SourceBalance,
		"destination_balance": res.DestBalance,
	})
}
