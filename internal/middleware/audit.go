package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/deposit_ledger/internal/ledger"
)

// Audit logs one line per request. Failed ledger operations carry their
// taxonomy code so they can be grouped without parsing messages.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		}
		if id := RequestIDFrom(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if signer := SignerFrom(c); !signer.IsZero() {
			attrs = append(attrs, slog.String("signer", signer.String()))
		}
		if err != nil {
			attrs = append(attrs, slog.String("code", ledger.Code(err)), slog.Any("error", err))
			logger.Error("request completed", attrs...)
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
