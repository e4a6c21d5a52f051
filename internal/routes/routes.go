package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/veriflow/veriflow/internal/config"
	"github.com/veriflow/veriflow/internal/events"
	"github.com/veriflow/veriflow/internal/idproof"
	"github.com/veriflow/veriflow/internal/merchant"
	"github.com/veriflow/veriflow/internal/middleware"
	"github.com/veriflow/veriflow/internal/simulate"
	"github.com/veriflow/veriflow/internal/stepup"
	"github.com/veriflow/veriflow/internal/verification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Merchant merchant.Profile
	Events   events.Publisher
}

// Setup configures middlewares and all application routes. The returned
// function stops background work started here.
func Setup(app *fiber.App, d Deps) (func(), error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	c, err := buildComponents(d)
	if err != nil {
		return nil, err
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"merchant":   d.Merchant.Label,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterVerificationRoutes(api, verification.NewHandler(c.orchestrator, c.approvals).WithPollHints(d.Cfg.PollInterval, d.Cfg.PollCeiling), d.Cfg, d.Cache, d.Logger)
	RegisterIdentityProofRoutes(api, idproof.NewHandler(c.idproof))
	RegisterStepUpRoutes(api, stepup.NewHandler(c.stepup), d.Cfg.AdminToken)

	var auto *simulate.AutoApprover
	if d.Cfg.TestApprovalEnabled() {
		auto = simulate.NewAutoApprover(c.orchestrator, d.Cfg.TestApprovalDelay, d.Logger)
		api.Post("/test-approve", auto.Handler())
		d.Logger.Warn("test auto-approval endpoint enabled", slog.Duration("delay", d.Cfg.TestApprovalDelay))
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.approvals.RunJanitor(janitorCtx, d.Cfg.JanitorInterval, d.Cfg.ApprovalRetention)
	}()

	cleanup := func() {
		stopJanitor()
		wg.Wait()
		if auto != nil {
			auto.Close()
		}
	}
	return cleanup, nil
}
