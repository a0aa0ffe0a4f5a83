package middleware

import (
	"crypto/ed25519"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/mr-tron/base58"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

const (
	SignerHeader    = "X-Signer"
	SignatureHeader = "X-Signature"
	signerLocal     = "signer"
)

// SigningPayload is the message a signer signs for a request.
func SigningPayload(method, path string, body []byte) []byte {
	payload := make([]byte, 0, len(method)+len(path)+len(body)+2)
	payload = append(payload, method...)
	payload = append(payload, '\n')
	payload = append(payload, path...)
	payload = append(payload, '\n')
	return append(payload, body...)
}

// SignerAuth verifies the ed25519 signature in X-Signature against the
// public key in X-Signer and exposes the signer to handlers.
func SignerAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		signer, err := key.Parse(c.Get(SignerHeader))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "missing or malformed signer")
		}
		sig, err := base58.Decode(c.Get(SignatureHeader))
		if err != nil || len(sig) != ed25519.SignatureSize {
			return fiber.NewError(http.StatusUnauthorized, "missing or malformed signature")
		}
		if !ed25519.Verify(signer.PublicKey(), SigningPayload(c.Method(), c.Path(), c.Body()), sig) {
			return fiber.NewError(http.StatusUnauthorized, "signature does not verify")
		}

		c.Locals(signerLocal, signer)
		return c.Next()
	}
}

// SignerFrom returns the verified signer, or the zero key.
func SignerFrom(c *fiber.Ctx) key.Key {
	signer, _ := c.Locals(signerLocal).(key.Key)
	return signer
}
