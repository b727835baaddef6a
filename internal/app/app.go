package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/chain"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/config"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/notify"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.PagerDuty.Enabled {
		return nil
	}
	cfg := a.Config.PagerDuty
	return notify.NewPagerDutyNotifier(cfg.RoutingKey, cfg.APIBase, cfg.RequestTimeout, a.Logger)
}

func (a *App) newPauser() (*chain.ContractPauser, error) {
	if a.Config.ReadOnly() {
		return nil, nil
	}
	return chain.NewContractPauser(chain.PauserOptions{
		RPCURL:          a.Config.Ethereum.RPCURL,
		Timeout:         a.Config.Ethereum.RequestTimeout,
		StateContract:   a.Config.Ethereum.StateContractAddress,
		PortalContract:  a.Config.Ethereum.PortalContractAddress,
		GatewayContract: a.Config.Ethereum.GatewayContractAddress,
	}, a.Config.Ethereum.WalletKey, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

// Run executes the long-running watchtower service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert history disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	pauser, err := a.newPauser()
	if err != nil {
		return err
	}
	if pauser == nil {
		a.Logger.Warn().Msgf("%s not set; running read-only, pause actions disabled", config.PrivateKeyEnvVar)
	}

	metrics := alerting.NewMetrics()
	windows := alerting.NewWindowSet()
	dedup := alerting.NewDeduplicator(a.Config.DuplicateDelay(), metrics.AlertsSuppressed)

	rules, err := compileRules(a.Config, windows)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("rules", len(rules)).Msg("compiled alert rule set")

	var alertStore alerting.AlertStore
	if store != nil {
		alertStore = store
	}
	var enginePauser alerting.Pauser
	if pauser != nil {
		enginePauser = pauser
	}

	dispatcher := alerting.NewDispatcher(a.newNotifier(), enginePauser, alertStore, metrics, a.Logger)
	engine := alerting.NewEngine(rules, dedup, dispatcher, metrics, a.Logger)

	fuelClient := chain.NewFuelClient(chain.FuelClientOptions{
		GraphQLURL: a.Config.Fuel.GraphQLURL,
		Timeout:    a.Config.Fuel.RequestTimeout,
	}, a.Logger)

	fuelWatcher := chain.NewFuelWatcher(chain.FuelWatcherOptions{
		PollInterval:  a.Config.Fuel.PollInterval,
		GatewayTokens: gatewayTokens(a.Config.FuelWatcher.GatewayWithdrawAlerts, fuelTokenDecimals),
	}, fuelClient, engine, a.Logger)

	var account string
	if pauser != nil {
		account = pauser.Account()
	}
	ethWatcher := chain.NewEthereumWatcher(chain.EthereumWatcherOptions{
		RPCURL:          a.Config.Ethereum.RPCURL,
		Timeout:         a.Config.Ethereum.RequestTimeout,
		PollInterval:    a.Config.Ethereum.PollInterval,
		StateContract:   a.Config.Ethereum.StateContractAddress,
		PortalContract:  a.Config.Ethereum.PortalContractAddress,
		GatewayContract: a.Config.Ethereum.GatewayContractAddress,
		Account:         account,
		GatewayTokens:   gatewayTokens(a.Config.EthereumWatcher.GatewayDepositAlerts, ethereumTokenDecimals),
	}, fuelClient, engine, a.Logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return engine.Run(ctx) })
	group.Go(func() error { return fuelWatcher.Run(ctx) })
	group.Go(func() error { return ethWatcher.Run(ctx) })
	if a.Config.Metrics.Enabled {
		group.Go(func() error { return a.serveMetrics(ctx, metrics) })
	}

	a.Logger.Info().Msg("watchtower started")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watchtower terminated with error")
		return err
	}

	a.Logger.Info().Msg("watchtower stopped")
	return nil
}

func (a *App) serveMetrics(ctx context.Context, metrics *alerting.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{Addr: a.Config.Metrics.Addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a.Logger.Info().Str("addr", a.Config.Metrics.Addr).Msg("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting alert history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
