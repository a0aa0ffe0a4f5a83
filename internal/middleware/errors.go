package middleware

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/ledger"
)

// StatusFor maps a ledger error to the HTTP status it is reported with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrAssetMismatch),
		errors.Is(err, ledger.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrDelegated),
		errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrAddressDerivationMismatch),
		errors.Is(err, ledger.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrExternalCallFailure):
		return http.StatusBadGateway
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every failure as {"error", "code"}. Internal errors
// are not echoed to the caller.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message, "code": "request_rejected"})
	}

	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	return c.Status(status).JSON(fiber.Map{"error": message, "code": ledger.Code(err)})
}
