// internal/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	router "orderpay/internal/api"
	"orderpay/internal/api/handler"
	"orderpay/internal/config"
	"orderpay/internal/domain"
	"orderpay/internal/gateway"
	"orderpay/internal/repository"
	"orderpay/internal/repository/postgres"
	"orderpay/internal/service"
	"orderpay/internal/util"
	"orderpay/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sqlx.DB

	// Repositories
	SubtransactionStore repository.SubtransactionStore

	// Services
	TransactionService service.TransactionService

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize initializes all application components.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	// 2. Initialize Logger
	util.InitLogger()
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Connect to Database
	database, err := db.NewPostgresDB(app.Config.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Logger.Info("Database connection established.")

	// 4. Initialize Repositories
	app.SubtransactionStore = postgres.NewSubtransactionStore(app.DB)
	app.Logger.Info("Repositories initialized.")

	// 5. Initialize downstream gateways
	currencies := domain.DefaultCurrencyTable()
	clientCfg := gateway.ClientConfig{
		Timeout:    cfg.Gateway.Timeout,
		RetryCount: cfg.Gateway.RetryCount,
		RetryWait:  cfg.Gateway.RetryWait,
	}
	payments := gateway.NewPaymentGateway(cfg.Gateway.PaymentEndpoint, clientCfg)
	oracle := gateway.NewBalanceOracle(cfg.Gateway.WalletEndpoint, clientCfg, currencies)
	cart := gateway.NewCartClient(cfg.Gateway.CartEndpoint, clientCfg, currencies)
	delivery := gateway.NewDeliveryCodeService(cfg.Gateway.LMSEndpoint, clientCfg)
	notifier := gateway.NewNotifier(cfg.Gateway.NotificationEndpoint, clientCfg)
	app.Logger.Info("Downstream gateways initialized.")

	// 6. Initialize Services
	machine := service.NewSubtransactionStateMachine(app.SubtransactionStore, payments, app.Logger)
	alloc := service.NewAllocationCalculator(app.SubtransactionStore, oracle, machine)
	app.TransactionService = service.NewTransactionOrchestrator(
		app.SubtransactionStore,
		payments,
		oracle,
		cart,
		delivery,
		notifier,
		alloc,
		machine,
		app.Logger,
	)
	app.Logger.Info("Services initialized.")

	// 7. Initialize HTTP Handlers and Router
	transactionHandler := handler.NewTransactionHandler(app.TransactionService, currencies, app.Logger)
	app.HTTPHandler = router.NewRouter(transactionHandler, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			return fmt.Errorf("failed to close database connection: %w", err)
		}
		app.Logger.Info("Database connection closed.")
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
