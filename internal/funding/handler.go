package funding

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/deposit"
	"github.com/congo-pay/deposit_ledger/internal/middleware"
)

// Handler exposes the balance mutation endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type modifyRequest struct {
	Amount   uint64 `json:"amount"`
	Increase bool   `json:"increase"`
}

type modifyResponse struct {
	Address   string `json:"address"`
	Kind      string `json:"kind"`
	Balance   uint64 `json:"balance"`
	UIBalance string `json:"ui_balance"`
}

// ModifyBalance deposits into or withdraws from the signer's entry.
func (h *Handler) ModifyBalance(c *fiber.Ctx) error {
	owner, asset, err := deposit.ParseEntryParams(c)
	if err != nil {
		return err
	}
	var req modifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.ModifyBalance(c.UserContext(), ModifyInput{
		Owner:    owner,
		Asset:    asset,
		Signer:   middleware.SignerFrom(c),
		Amount:   req.Amount,
		Increase: req.Increase,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusOK).JSON(modifyResponse{
		Address:   res.Address.String(),
		Kind:      res.Kind,
		Balance:   res.Balance,
		UIBalance: deposit.UIAmount(res.Balance, res.Decimals),
	})
}
