package routes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/deposit_ledger/internal/assets"
	"github.com/congo-pay/deposit_ledger/internal/config"
	"github.com/congo-pay/deposit_ledger/internal/delegation"
	"github.com/congo-pay/deposit_ledger/internal/deposit"
	"github.com/congo-pay/deposit_ledger/internal/funding"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
	"github.com/congo-pay/deposit_ledger/internal/middleware"
	"github.com/congo-pay/deposit_ledger/internal/notification"
	"github.com/congo-pay/deposit_ledger/internal/payments"
	"github.com/congo-pay/deposit_ledger/internal/permission"
)

// Deps aggregates shared dependencies required to wire routes. Nil
// collaborators are replaced by their in-process implementations.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Logger    *slog.Logger
	Assets    assets.Service
	Authority permission.Authority
	Notifier  notification.Notifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	router, err := ledgerRouter(d)
	if err != nil {
		return err
	}
	assetSvc := d.Assets
	if assetSvc == nil {
		mem := assets.NewMemory()
		for _, asset := range d.Cfg.DevAssetKeys {
			mem.RegisterAsset(asset, d.Cfg.DevAssetDecimals)
		}
		assetSvc = mem
	}
	authority := d.Authority
	if authority == nil {
		authority = permission.NewMemory()
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	ectx := delegation.ExecutionContext{Context: d.Cfg.ExecutionContext, Program: d.Cfg.ExecutionProgram}
	handoff := delegation.NewHandoff(router.Base(), router.Replica(), ectx, d.Logger)

	depositSvc := deposit.NewService(router, assetSvc, d.Logger)
	fundingSvc, err := funding.NewService(router, assetSvc, notifier, d.Logger)
	if err != nil {
		return err
	}
	paymentSvc := payments.NewService(router, notifier, d.Logger)
	permissionBridge := permission.NewBridge(router, authority, notifier, d.Logger)
	delegationBridge := delegation.NewBridge(router, handoff, delegation.Options{
		Config:           delegation.Config{CommitFrequency: d.Cfg.CommitFrequency, Validator: d.Cfg.DelegationValidator},
		ExecutionContext: ectx,
		Notifier:         notifier,
		Logger:           d.Logger,
	})

	depositHandler := deposit.NewHandler(depositSvc)

	api := app.Group("/api/v1")
	RegisterDepositReadRoutes(api, depositHandler)

	signed := api.Group("", middleware.SignerAuth(), middleware.SignerRateLimit(d.Cache, d.Cfg.SignerRate))
	if d.Cache != nil {
		signed.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterDepositRoutes(signed, depositHandler)
	RegisterFundingRoutes(signed, funding.NewHandler(fundingSvc))
	RegisterPaymentRoutes(signed, payments.NewHandler(paymentSvc))
	RegisterPermissionRoutes(signed, permission.NewHandler(permissionBridge))
	RegisterDelegationRoutes(signed, delegation.NewHandler(delegationBridge))

	return nil
}

func ledgerRouter(d Deps) (*ledger.Router, error) {
	var base ledger.BaseStore = ledger.NewInMemory()
	if d.DB != nil {
		pg := ledger.NewPostgresBase(d.DB)
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, fmt.Errorf("migrate ledger: %w", err)
		}
		base = pg
	}
	var replica ledger.Replica = ledger.NewInMemoryReplica()
	if d.Cache != nil {
		replica = ledger.NewRedisReplica(d.Cache)
	}
	return ledger.NewRouter(base, replica), nil
}
