package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 2 * time.Second

type probe struct {
	name  string
	check func(context.Context) error
}

// RegisterHealthRoutes exposes /healthz. Stores that are not configured are
// reported as "disabled" and do not fail the check.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	var probes []probe
	if d.DB != nil {
		probes = append(probes, probe{"postgres", d.DB.Ping})
	}
	if d.Cache != nil {
		probes = append(probes, probe{"redis", func(ctx context.Context) error { return d.Cache.Ping(ctx).Err() }})
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()

		report := fiber.Map{
			"postgres":         "disabled",
			"redis":            "disabled",
			"approval_backend": d.Cfg.ApprovalBackend,
			"merchant":         d.Merchant.Label,
		}
		status := http.StatusOK
		for _, p := range probes {
			if err := p.check(ctx); err != nil {
				report[p.name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			report[p.name] = "ok"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    report,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
