package deposit

import (
	"math/big"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

// Handler exposes deposit HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a deposit HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initializeRequest struct {
	Owner   key.Key  `json:"owner"`
	Asset   key.Key  `json:"asset"`
	Address *key.Key `json:"address,omitempty"`
}

// Response is the JSON shape of a deposit.
type Response struct {
	Address   string    `json:"address"`
	Owner     string    `json:"owner"`
	Asset     string    `json:"asset"`
	Balance   uint64    `json:"balance"`
	UIBalance string    `json:"ui_balance"`
	Decimals  uint8     `json:"decimals"`
	State     string    `json:"state"`
	AsOf      time.Time `json:"as_of"`
}

// ToResponse renders d, formatting the balance in whole asset units.
func ToResponse(d Deposit) Response {
	return Response{
		Address:   d.Address.String(),
		Owner:     d.Owner.String(),
		Asset:     d.Asset.String(),
		Balance:   d.Balance,
		UIBalance: UIAmount(d.Balance, d.Decimals),
		Decimals:  d.Decimals,
		State:     string(d.State),
		AsOf:      d.AsOf,
	}
}

// UIAmount renders amount base units as a decimal string with decimals places.
func UIAmount(amount uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals)).StringFixed(int32(decimals))
}

// ParseEntryParams reads the :owner and :asset route parameters.
func ParseEntryParams(c *fiber.Ctx) (owner, asset key.Key, err error) {
	owner, err = key.Parse(c.Params("owner"))
	if err != nil {
		return key.Zero, key.Zero, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	asset, err = key.Parse(c.Params("asset"))
	if err != nil {
		return key.Zero, key.Zero, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return owner, asset, nil
}

// Initialize creates the entry of (owner, asset) if it does not exist.
func (h *Handler) Initialize(c *fiber.Ctx) error {
	var req initializeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	d, err := h.service.Initialize(c.UserContext(), InitializeInput{Owner: req.Owner, Asset: req.Asset, Address: req.Address})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(ToResponse(d))
}

// Get returns the entry of (owner, asset).
func (h *Handler) Get(c *fiber.Ctx) error {
	owner, asset, err := ParseEntryParams(c)
	if err != nil {
		return err
	}
	d, err := h.service.Get(c.UserContext(), owner, asset)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(ToResponse(d))
}
