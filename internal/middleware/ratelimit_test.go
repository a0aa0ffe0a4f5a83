package middleware

import (
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func limitedApp(cache *redis.Client) *fiber.App {
	app := fiber.New()
	app.Use(SignerRateLimit(cache, 2))
	app.Post("/op", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func statuses(t *testing.T, app *fiber.App, n int) []int {
	t.Helper()
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/op", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		out = append(out, resp.StatusCode)
	}
	return out
}

func TestSignerRateLimitWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	got := statuses(t, limitedApp(cache), 3)
	if got[0] != fiber.StatusOK || got[1] != fiber.StatusOK || got[2] != fiber.StatusTooManyRequests {
		t.Fatalf("unexpected statuses %v", got)
	}
}

func TestSignerRateLimitInProcess(t *testing.T) {
	got := statuses(t, limitedApp(nil), 3)
	if got[0] != fiber.StatusOK || got[1] != fiber.StatusOK || got[2] != fiber.StatusTooManyRequests {
		t.Fatalf("unexpected statuses %v", got)
	}
}
