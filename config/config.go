// Copyright (c) 2025 BVK Chaitanya

// Package config loads the YAML configuration of a trading session and
// converts it into the options of the session components.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bvk/orbtrader/breakout"
	"github.com/bvk/orbtrader/engine"
	"github.com/bvk/orbtrader/fetcher"
	"github.com/bvk/orbtrader/gateway"
	"github.com/bvk/orbtrader/gex"
	"github.com/bvk/orbtrader/instrument"
	"github.com/bvk/orbtrader/marketdata"
	"github.com/bvk/orbtrader/order"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Connection struct {
	Endpoint       string        `yaml:"endpoint"`
	ClientID       int           `yaml:"client_id"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// KeyName and KeyFile enable the signed bearer token in the handshake.
	KeyName string `yaml:"key_name"`
	KeyFile string `yaml:"key_file"`
}

type Instrument struct {
	Ticker           string `yaml:"ticker"`
	Exchange         string `yaml:"exchange"`
	Currency         string `yaml:"currency"`
	ExchangeTimezone string `yaml:"exchange_timezone"`
}

type OpeningRange struct {
	MarketOpenTime    string        `yaml:"market_open_time"`
	DurationMinutes   int           `yaml:"duration_minutes"`
	BarSize           string        `yaml:"bar_size"`
	WaitBuffer        time.Duration `yaml:"wait_buffer"`
	HistoricalTimeout time.Duration `yaml:"historical_timeout"`
	UseRTH            *bool         `yaml:"use_rth"`
}

type Breakout struct {
	BarSizeSeconds int `yaml:"bar_size_seconds"`
}

type Provider struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type Gex struct {
	Provider         string  `yaml:"provider"`
	DaysToExpiration int     `yaml:"days_to_expiration"`
	StrikesQuantity  int     `yaml:"strikes_quantity"`
	OptionMultiplier int     `yaml:"option_multiplier"`
	MinCoverage      float64 `yaml:"min_coverage"`

	// OnFailure is required; either abort-cycle or direction-only.
	OnFailure string `yaml:"on_failure"`

	Providers struct {
		Gexbot  Provider `yaml:"gexbot"`
		Massive Provider `yaml:"massive"`
	} `yaml:"providers"`
}

type TradeExecution struct {
	TotalQuantity       int    `yaml:"total_quantity"`
	EntryOrderType      string `yaml:"entry_order_type"`
	TakeProfitOrderType string `yaml:"tp_order_type"`
	StopLossOrderType   string `yaml:"sl_order_type"`
}

type TrailingStop struct {
	ActivationProfitPct float64 `yaml:"activation_profit_pct"`
	TrailPct            float64 `yaml:"trail_pct"`
	Mode                string  `yaml:"mode"`
}

// TradeManagement percentages are in percent units, e.g. 50 for 50%.
type TradeManagement struct {
	TakeProfitPct      float64       `yaml:"take_profit_pct"`
	StopLossPct        float64       `yaml:"stop_loss_pct"`
	TrailingStop       TrailingStop  `yaml:"trailing_stop"`
	ManageInterval     time.Duration `yaml:"manage_interval"`
	SiblingGracePeriod time.Duration `yaml:"sibling_grace_period"`
}

type Timeouts struct {
	Request      time.Duration `yaml:"request"`
	FetchOverall time.Duration `yaml:"fetch_overall"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type Pushover struct {
	ApplicationKey string `yaml:"application_key"`
	UserKey        string `yaml:"user_key"`
}

type Telegram struct {
	BotToken string   `yaml:"bot_token"`
	OwnerID  string   `yaml:"owner"`
	AdminID  string   `yaml:"admin"`
	OtherIDs []string `yaml:"others"`
}

type Alerts struct {
	Pushover *Pushover `yaml:"pushover"`
	Telegram *Telegram `yaml:"telegram"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type HTTP struct {
	Listen string `yaml:"listen"`
}

type Config struct {
	Connection      Connection      `yaml:"connection"`
	Account         string          `yaml:"account"`
	Instrument      Instrument      `yaml:"instrument"`
	OpeningRange    OpeningRange    `yaml:"opening_range"`
	Breakout        Breakout        `yaml:"breakout"`
	Gex             Gex             `yaml:"gex"`
	TradeExecution  TradeExecution  `yaml:"trade_execution"`
	TradeManagement TradeManagement `yaml:"trade_management"`
	Timeouts        Timeouts        `yaml:"timeouts"`
	Alerts          Alerts          `yaml:"alerts"`
	Logging         Logging         `yaml:"logging"`
	HTTP            HTTP            `yaml:"http"`
}

// Load reads the configuration file, fills in the defaults and validates it.
func Load(fpath string) (*Config, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %q: %w", fpath, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	c := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("could not decode yaml config: %w", err)
	}
	c.setDefaults()
	if err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) setDefaults() {
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = 10 * time.Second
	}
	if c.Instrument.Exchange == "" {
		c.Instrument.Exchange = "SMART"
	}
	if c.Instrument.Currency == "" {
		c.Instrument.Currency = "USD"
	}
	if c.Instrument.ExchangeTimezone == "" {
		c.Instrument.ExchangeTimezone = "America/New_York"
	}
	if c.OpeningRange.MarketOpenTime == "" {
		c.OpeningRange.MarketOpenTime = "09:30"
	}
	if c.OpeningRange.DurationMinutes == 0 {
		c.OpeningRange.DurationMinutes = 30
	}
	if c.OpeningRange.BarSize == "" {
		c.OpeningRange.BarSize = "1 min"
	}
	if c.OpeningRange.WaitBuffer == 0 {
		c.OpeningRange.WaitBuffer = 5 * time.Second
	}
	if c.OpeningRange.HistoricalTimeout == 0 {
		c.OpeningRange.HistoricalTimeout = 30 * time.Second
	}
	if c.OpeningRange.UseRTH == nil {
		useRTH := true
		c.OpeningRange.UseRTH = &useRTH
	}
	if c.Breakout.BarSizeSeconds == 0 {
		c.Breakout.BarSizeSeconds = 300
	}
	if c.Gex.Provider == "" {
		c.Gex.Provider = gex.ProviderGateway
	}
	if c.Gex.StrikesQuantity == 0 {
		c.Gex.StrikesQuantity = 40
	}
	if c.Gex.OptionMultiplier == 0 {
		c.Gex.OptionMultiplier = 100
	}
	if c.Gex.MinCoverage == 0 {
		c.Gex.MinCoverage = 0.8
	}
	if c.TradeExecution.TotalQuantity == 0 {
		c.TradeExecution.TotalQuantity = 1
	}
	if c.TradeExecution.EntryOrderType == "" {
		c.TradeExecution.EntryOrderType = "LMT"
	}
	if c.TradeExecution.TakeProfitOrderType == "" {
		c.TradeExecution.TakeProfitOrderType = "LMT"
	}
	if c.TradeExecution.StopLossOrderType == "" {
		c.TradeExecution.StopLossOrderType = "STP"
	}
	if c.TradeManagement.TrailingStop.Mode == "" {
		c.TradeManagement.TrailingStop.Mode = order.TrailPrice
	}
	if c.TradeManagement.ManageInterval == 0 {
		c.TradeManagement.ManageInterval = 5 * time.Second
	}
	if c.TradeManagement.SiblingGracePeriod == 0 {
		c.TradeManagement.SiblingGracePeriod = 5 * time.Second
	}
	if c.Timeouts.Request == 0 {
		c.Timeouts.Request = 5 * time.Second
	}
	if c.Timeouts.FetchOverall == 0 {
		c.Timeouts.FetchOverall = 20 * time.Second
	}
	if c.Timeouts.RetryBackoff == 0 {
		c.Timeouts.RetryBackoff = 250 * time.Millisecond
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) Check() error {
	if len(c.Connection.Endpoint) == 0 {
		return fmt.Errorf("connection endpoint cannot be empty: %w", os.ErrInvalid)
	}
	if (len(c.Connection.KeyName) == 0) != (len(c.Connection.KeyFile) == 0) {
		return fmt.Errorf("connection key name and key file must be set together: %w", os.ErrInvalid)
	}
	if len(c.Instrument.Ticker) == 0 {
		return fmt.Errorf("instrument ticker cannot be empty: %w", os.ErrInvalid)
	}
	if _, err := time.LoadLocation(c.Instrument.ExchangeTimezone); err != nil {
		return fmt.Errorf("exchange timezone %q is invalid: %w", c.Instrument.ExchangeTimezone, err)
	}
	switch engine.GexFailurePolicy(c.Gex.OnFailure) {
	case engine.AbortCycle, engine.DirectionOnly:
	case "":
		return fmt.Errorf("gex.on_failure must be set to %q or %q: %w", engine.AbortCycle, engine.DirectionOnly, os.ErrInvalid)
	default:
		return fmt.Errorf("gex.on_failure value %q is invalid: %w", c.Gex.OnFailure, os.ErrInvalid)
	}
	if c.TradeExecution.TotalQuantity < 0 {
		return fmt.Errorf("total quantity cannot be negative: %w", os.ErrInvalid)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}

	// Component options validate their own fields.
	if err := c.GexOptions().Check(); err != nil {
		return err
	}
	if err := c.OrderOptions().Check(); err != nil {
		return err
	}
	bopts, err := c.BreakoutOptions()
	if err != nil {
		return err
	}
	if err := bopts.Check(); err != nil {
		return err
	}
	return nil
}

// Location returns the exchange timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Instrument.ExchangeTimezone)
	if err != nil {
		slog.Warn("could not load exchange timezone (using UTC)", "timezone", c.Instrument.ExchangeTimezone, "err", err)
		return time.UTC
	}
	return loc
}

func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return level, fmt.Errorf("log level %q is invalid: %w", c.Logging.Level, os.ErrInvalid)
	}
	return level, nil
}

// Credentials reads the key file, if any, and returns the gateway
// credentials.
func (c *Config) Credentials() (*gateway.Credentials, error) {
	creds := &gateway.Credentials{
		ClientID: c.Connection.ClientID,
		Account:  c.Account,
		KeyName:  c.Connection.KeyName,
	}
	if len(c.Connection.KeyFile) > 0 {
		data, err := os.ReadFile(c.Connection.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("could not read key file: %w", err)
		}
		creds.KeyPEM = string(data)
	}
	return creds, nil
}

func (c *Config) GatewayOptions() *gateway.Options {
	return &gateway.Options{
		RequestTimeout: c.Timeouts.Request,
	}
}

func (c *Config) FetcherOptions() *fetcher.Options {
	return &fetcher.Options{
		MaxRetries:   c.Timeouts.MaxRetries,
		RetryBackoff: c.Timeouts.RetryBackoff,
	}
}

func (c *Config) MarketDataOptions() *marketdata.Options {
	return &marketdata.Options{
		RequestTimeout: c.Timeouts.Request,
		BatchTimeout:   c.Timeouts.FetchOverall,
		ChainExchange:  c.Instrument.Exchange,
	}
}

// Underlying returns the underlying contract of the traded options.
func (c *Config) Underlying() instrument.Contract {
	return instrument.Underlying(c.Instrument.Ticker, c.Instrument.Exchange, c.Instrument.Currency)
}

func (c *Config) BreakoutOptions() (*breakout.Options, error) {
	if c.Breakout.BarSizeSeconds <= 0 {
		return nil, fmt.Errorf("breakout bar size must be positive: %w", os.ErrInvalid)
	}
	return &breakout.Options{
		Contract:          c.Underlying(),
		Location:          c.Location(),
		MarketOpen:        c.OpeningRange.MarketOpenTime,
		RangeDuration:     time.Duration(c.OpeningRange.DurationMinutes) * time.Minute,
		WaitBuffer:        c.OpeningRange.WaitBuffer,
		BarSize:           c.OpeningRange.BarSize,
		HistoricalTimeout: c.OpeningRange.HistoricalTimeout,
		HistoricalRetries: c.Timeouts.MaxRetries,
		UseRTH:            *c.OpeningRange.UseRTH,
		CandleSize:        time.Duration(c.Breakout.BarSizeSeconds) * time.Second,
	}, nil
}

func restOptions(p Provider) gex.RESTOptions {
	return gex.RESTOptions{
		BaseURL:           p.BaseURL,
		APIKey:            p.APIKey,
		RequestsPerMinute: p.RequestsPerMinute,
	}
}

func (c *Config) GexOptions() *gex.Options {
	return &gex.Options{
		Provider:         c.Gex.Provider,
		DaysToExpiration: c.Gex.DaysToExpiration,
		StrikesQuantity:  c.Gex.StrikesQuantity,
		OptionMultiplier: c.Gex.OptionMultiplier,
		MinCoverage:      c.Gex.MinCoverage,
		Exchange:         c.Instrument.Exchange,
		Currency:         c.Instrument.Currency,
		Gexbot:           restOptions(c.Gex.Providers.Gexbot),
		Massive:          restOptions(c.Gex.Providers.Massive),
		HTTPRetries:      c.Timeouts.MaxRetries,
		Location:         c.Location(),
		Now:              time.Now,
	}
}

func percent(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Div(decimal.NewFromInt(100))
}

// OrderOptions converts the percent values into fractions.
func (c *Config) OrderOptions() *order.Options {
	tm := &c.TradeManagement
	return &order.Options{
		Account:             c.Account,
		Quantity:            decimal.NewFromInt(int64(c.TradeExecution.TotalQuantity)),
		EntryOrderType:      c.TradeExecution.EntryOrderType,
		TakeProfitOrderType: c.TradeExecution.TakeProfitOrderType,
		StopLossOrderType:   c.TradeExecution.StopLossOrderType,
		TakeProfitPct:       percent(tm.TakeProfitPct),
		StopLossPct:         percent(tm.StopLossPct),
		ActivationPct:       percent(tm.TrailingStop.ActivationProfitPct),
		TrailPct:            percent(tm.TrailingStop.TrailPct),
		TrailMode:           tm.TrailingStop.Mode,
		OrderTimeout:        c.Timeouts.Request,
		SiblingGracePeriod:  tm.SiblingGracePeriod,
	}
}

func (c *Config) OrderUnderlying() *order.Underlying {
	u := c.Underlying()
	return &order.Underlying{
		Symbol:     u.Symbol,
		Exchange:   u.Exchange,
		Currency:   u.Currency,
		Multiplier: c.Gex.OptionMultiplier,
	}
}

// EngineOptions returns the engine options; the target expiration follows
// the gex days to expiration.
func (c *Config) EngineOptions() *engine.Options {
	gopts := c.GexOptions()
	return &engine.Options{
		Underlying:       *c.OrderUnderlying(),
		GexFailure:       engine.GexFailurePolicy(c.Gex.OnFailure),
		TargetExpiration: gopts.TargetExpiration,
		ManageInterval:   c.TradeManagement.ManageInterval,
	}
}
