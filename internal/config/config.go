package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/logging"
)

// PrivateKeyEnvVar supplies the ethereum wallet key used to sign pause
// transactions. Putting the key in the config file works but is discouraged.
const PrivateKeyEnvVar = "WATCHTOWER_ETH_PRIVATE_KEY"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Fuel     FuelConfig     `mapstructure:"fuel"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`

	// DuplicateAlertDelay is the global per-identity alert cool-down, in seconds.
	DuplicateAlertDelay int `mapstructure:"duplicate_alert_delay"`

	FuelWatcher     FuelWatcherConfig     `mapstructure:"fuel_client_watcher"`
	EthereumWatcher EthereumWatcherConfig `mapstructure:"ethereum_client_watcher"`

	PagerDuty PagerDutyConfig `mapstructure:"pagerduty"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FuelConfig covers Fuel node access.
type FuelConfig struct {
	GraphQLURL     string        `mapstructure:"graphql_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EthereumConfig covers Ethereum node and bridge contract access.
type EthereumConfig struct {
	RPCURL                 string        `mapstructure:"rpc_url"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	RequestTimeout         time.Duration `mapstructure:"request_timeout"`
	StateContractAddress   string        `mapstructure:"state_contract_address"`
	PortalContractAddress  string        `mapstructure:"portal_contract_address"`
	GatewayContractAddress string        `mapstructure:"gateway_contract_address"`

	// WalletKey signs pause transactions and locates the operator account for
	// the funds rule. Normally injected via PrivateKeyEnvVar; without it the
	// watchtower runs read-only.
	WalletKey string `mapstructure:"wallet_key"`
}

// PagerDutyConfig defines alert delivery.
type PagerDutyConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RoutingKey     string        `mapstructure:"routing_key"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for alert history.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MetricsConfig governs the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// GenericAlert configures a rule with no extra parameters.
type GenericAlert struct {
	AlertLevel string `mapstructure:"alert_level"`
}

// BlockProductionAlert configures the block production rule.
type BlockProductionAlert struct {
	AlertLevel string `mapstructure:"alert_level"`
	// MaxBlockTime is the longest tolerated gap between blocks, in seconds.
	MaxBlockTime int `mapstructure:"max_block_time"`
}

// AccountFundsAlert configures the operator balance rule.
type AccountFundsAlert struct {
	AlertLevel string  `mapstructure:"alert_level"`
	MinBalance float64 `mapstructure:"min_balance"`
}

// StateCommitAlert configures the invalid state commit rule, the only rule
// permitted to request a protective action.
type StateCommitAlert struct {
	AlertLevel  string `mapstructure:"alert_level"`
	AlertAction string `mapstructure:"alert_action"`
}

// PortalAlert configures one base-asset windowed threshold.
type PortalAlert struct {
	AlertLevel string `mapstructure:"alert_level"`
	// TimeFrame is the trailing window, in seconds.
	TimeFrame int     `mapstructure:"time_frame"`
	Amount    float64 `mapstructure:"amount"`
}

// GatewayAlert configures one token windowed threshold.
type GatewayAlert struct {
	AlertLevel    string  `mapstructure:"alert_level"`
	TokenName     string  `mapstructure:"token_name"`
	TokenAddress  string  `mapstructure:"token_address"`
	TokenDecimals int     `mapstructure:"token_decimals"`
	TimeFrame     int     `mapstructure:"time_frame"`
	Amount        float64 `mapstructure:"amount"`
}

// FuelWatcherConfig holds the Fuel-side rule set.
type FuelWatcherConfig struct {
	ConnectionAlert       GenericAlert         `mapstructure:"connection_alert"`
	BlockProductionAlert  BlockProductionAlert `mapstructure:"block_production_alert"`
	PortalWithdrawAlerts  []PortalAlert        `mapstructure:"portal_withdraw_alerts"`
	GatewayWithdrawAlerts []GatewayAlert       `mapstructure:"gateway_withdraw_alerts"`
}

// EthereumWatcherConfig holds the Ethereum-side rule set.
type EthereumWatcherConfig struct {
	ConnectionAlert      GenericAlert         `mapstructure:"connection_alert"`
	BlockProductionAlert BlockProductionAlert `mapstructure:"block_production_alert"`
	AccountFundsAlert    AccountFundsAlert    `mapstructure:"account_funds_alert"`
	InvalidStateCommit   StateCommitAlert     `mapstructure:"invalid_state_commit_alert"`
	PortalDepositAlerts  []PortalAlert        `mapstructure:"portal_deposit_alerts"`
	GatewayDepositAlerts []GatewayAlert       `mapstructure:"gateway_deposit_alerts"`
}

// Load builds configuration from file, environment, and defaults. An invalid
// rule set is fatal: the watchtower must not start half-configured.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WATCHTOWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("watchtower")
		v.SetConfigType("json")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Ethereum.WalletKey == "" {
		cfg.Ethereum.WalletKey = os.Getenv(PrivateKeyEnvVar)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fuel-canary-watchtower")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.service", "fuel-canary-watchtower")

	v.SetDefault("duplicate_alert_delay", 300)

	v.SetDefault("fuel.poll_interval", "6s")
	v.SetDefault("fuel.request_timeout", "10s")
	v.SetDefault("ethereum.poll_interval", "6s")
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("fuel_client_watcher.block_production_alert.max_block_time", 60)
	v.SetDefault("ethereum_client_watcher.block_production_alert.max_block_time", 60)
	v.SetDefault("ethereum_client_watcher.account_funds_alert.min_balance", 0.1)

	v.SetDefault("pagerduty.api_base", "https://events.eu.pagerduty.com")
	v.SetDefault("pagerduty.request_timeout", "10s")

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.DuplicateAlertDelay <= 0 {
		return fmt.Errorf("duplicate_alert_delay must be greater than zero")
	}
	if c.Fuel.GraphQLURL == "" {
		return fmt.Errorf("fuel.graphql_url is required")
	}
	if c.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}

	if err := validateLevel("fuel_client_watcher.connection_alert", c.FuelWatcher.ConnectionAlert.AlertLevel); err != nil {
		return err
	}
	if err := validateBlockProduction("fuel_client_watcher.block_production_alert", c.FuelWatcher.BlockProductionAlert); err != nil {
		return err
	}
	for i, a := range c.FuelWatcher.PortalWithdrawAlerts {
		if err := validatePortal(fmt.Sprintf("fuel_client_watcher.portal_withdraw_alerts[%d]", i), a); err != nil {
			return err
		}
	}
	for i, a := range c.FuelWatcher.GatewayWithdrawAlerts {
		if err := validateGateway(fmt.Sprintf("fuel_client_watcher.gateway_withdraw_alerts[%d]", i), a); err != nil {
			return err
		}
	}

	if err := validateLevel("ethereum_client_watcher.connection_alert", c.EthereumWatcher.ConnectionAlert.AlertLevel); err != nil {
		return err
	}
	if err := validateBlockProduction("ethereum_client_watcher.block_production_alert", c.EthereumWatcher.BlockProductionAlert); err != nil {
		return err
	}
	if err := validateLevel("ethereum_client_watcher.account_funds_alert", c.EthereumWatcher.AccountFundsAlert.AlertLevel); err != nil {
		return err
	}
	if c.EthereumWatcher.AccountFundsAlert.MinBalance < 0 {
		return fmt.Errorf("ethereum_client_watcher.account_funds_alert.min_balance cannot be negative")
	}
	if err := validateLevel("ethereum_client_watcher.invalid_state_commit_alert", c.EthereumWatcher.InvalidStateCommit.AlertLevel); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.EthereumWatcher.InvalidStateCommit.AlertAction)) {
	case "", "none", "pause_all", "pauseall":
	default:
		return fmt.Errorf("ethereum_client_watcher.invalid_state_commit_alert.alert_action %q is not recognized", c.EthereumWatcher.InvalidStateCommit.AlertAction)
	}
	for i, a := range c.EthereumWatcher.PortalDepositAlerts {
		if err := validatePortal(fmt.Sprintf("ethereum_client_watcher.portal_deposit_alerts[%d]", i), a); err != nil {
			return err
		}
	}
	for i, a := range c.EthereumWatcher.GatewayDepositAlerts {
		if err := validateGateway(fmt.Sprintf("ethereum_client_watcher.gateway_deposit_alerts[%d]", i), a); err != nil {
			return err
		}
	}

	if c.PagerDuty.Enabled && c.PagerDuty.RoutingKey == "" {
		return fmt.Errorf("pagerduty.routing_key is required when pagerduty is enabled")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	return nil
}

// DuplicateDelay returns the cool-down as a duration.
func (c *Config) DuplicateDelay() time.Duration {
	return time.Duration(c.DuplicateAlertDelay) * time.Second
}

// ReadOnly reports whether the watchtower runs without a signing key.
func (c *Config) ReadOnly() bool {
	return c.Ethereum.WalletKey == ""
}

// ResolveMaxPoints returns either the CLI override or the config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

func validateLevel(path, level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "none", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("%s.alert_level %q is not recognized", path, level)
}

func validateBlockProduction(path string, a BlockProductionAlert) error {
	if err := validateLevel(path, a.AlertLevel); err != nil {
		return err
	}
	if a.MaxBlockTime <= 0 {
		return fmt.Errorf("%s.max_block_time must be greater than zero", path)
	}
	return nil
}

func validatePortal(path string, a PortalAlert) error {
	if err := validateLevel(path, a.AlertLevel); err != nil {
		return err
	}
	if a.TimeFrame <= 0 {
		return fmt.Errorf("%s.time_frame must be greater than zero", path)
	}
	if a.Amount <= 0 {
		return fmt.Errorf("%s.amount must be greater than zero", path)
	}
	return nil
}

func validateGateway(path string, a GatewayAlert) error {
	if err := validateLevel(path, a.AlertLevel); err != nil {
		return err
	}
	if a.TokenAddress == "" {
		return fmt.Errorf("%s.token_address is required", path)
	}
	if a.TimeFrame <= 0 {
		return fmt.Errorf("%s.time_frame must be greater than zero", path)
	}
	if a.Amount <= 0 {
		return fmt.Errorf("%s.amount must be greater than zero", path)
	}
	return nil
}
