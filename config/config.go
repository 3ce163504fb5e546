// Package config loads the strategy configuration from a YAML file and
// broker/notification credentials from environment variables.
//
// Configuration problems are startup-fatal: the trading loop never starts
// with a missing or out-of-range parameter.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jaengyi/RedArrow/internal/markethours"
)

// Trading modes.
const (
	ModeSimulation = "simulation"
	ModeReal       = "real"
)

// Config holds the full application configuration.
type Config struct {
	Mode string `yaml:"mode"` // simulation | real

	Selector SelectorConfig `yaml:"selector"`
	Risk     RiskConfig     `yaml:"risk"`
	Engine   EngineConfig   `yaml:"engine"`
	Market   MarketConfig   `yaml:"market"`
	Store    StoreConfig    `yaml:"store"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Report   ReportConfig   `yaml:"report"`

	Broker BrokerConfig `yaml:"-"` // env only, never in the YAML file
	Notify NotifyConfig `yaml:"-"` // env only
}

// SelectorConfig drives the stock selector and its signals.
type SelectorConfig struct {
	TopVolumeCount       int     `yaml:"top_volume_count"`
	MinScore             int     `yaml:"min_score"`
	VolumeSurgeThreshold float64 `yaml:"volume_surge_threshold"`
	VolumeAvgWindow      int     `yaml:"volume_avg_window"` // bars; 0 = whole history
	VolatilityBreakoutK  float64 `yaml:"volatility_breakout_k"`
	MAShortPeriod        int     `yaml:"ma_short_period"`
	MALongPeriod         int     `yaml:"ma_long_period"`
	MACDFast             int     `yaml:"macd_fast"`
	MACDSlow             int     `yaml:"macd_slow"`
	MACDSignal           int     `yaml:"macd_signal"`
	StochasticK          int     `yaml:"stochastic_k"`
	StochasticD          int     `yaml:"stochastic_d"`
	StochasticOversold   float64 `yaml:"stochastic_oversold"`
	SupportTolerance     float64 `yaml:"support_tolerance"` // fraction, e.g. 0.01

	Weights SignalWeights `yaml:"weights"`
}

// SignalWeights holds the score contribution of each signal.
type SignalWeights struct {
	VolumeSurge        int `yaml:"volume_surge"`
	GoldenCross        int `yaml:"golden_cross"`
	MABreakout         int `yaml:"ma_breakout"`
	VolatilityBreakout int `yaml:"volatility_breakout"`
	MACDBuy            int `yaml:"macd_buy"`
	StochasticBuy      int `yaml:"stochastic_buy"`
	OBVRising          int `yaml:"obv_rising"`
	SupportAtMA        int `yaml:"support_at_ma"`
	OrderBookImbalance int `yaml:"order_book_imbalance"` // optional signal, 0 by default
}

// Total returns the maximum achievable score.
func (w SignalWeights) Total() int {
	return w.VolumeSurge + w.GoldenCross + w.MABreakout + w.VolatilityBreakout +
		w.MACDBuy + w.StochasticBuy + w.OBVRising + w.SupportAtMA + w.OrderBookImbalance
}

// RiskConfig drives the risk controller.
type RiskConfig struct {
	StopLossPercent     float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent   float64 `yaml:"take_profit_percent"`
	TrailingStopEnabled bool    `yaml:"trailing_stop_enabled"`
	TrailingStopPercent float64 `yaml:"trailing_stop_percent"`
	RiskPercent         float64 `yaml:"risk_percent"`
	MaxPositionSize     float64 `yaml:"max_position_size"` // KRW per symbol
	MaxPositions        int     `yaml:"max_positions"`
	DailyLossLimit      float64 `yaml:"daily_loss_limit"` // negative percent
	OvernightHold       bool    `yaml:"overnight_hold"`
	OvernightMinProfit  float64 `yaml:"overnight_min_profit"`
	MaxSingleStockRatio float64 `yaml:"max_single_stock_ratio"` // fraction of total assets
}

// EngineConfig drives the orchestrator loop.
type EngineConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	SyncInterval    time.Duration `yaml:"sync_interval"`
	HistoryDays     int           `yaml:"history_days"`
	BrokerTimeout   time.Duration `yaml:"broker_timeout"`
	MaxConnFailures int           `yaml:"max_conn_failures"`
}

// MarketConfig holds the session window as "HH:MM" strings in KST.
type MarketConfig struct {
	OpenTime      string `yaml:"open_time"`
	CloseTime     string `yaml:"close_time"`
	NearCloseTime string `yaml:"near_close_time"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"` // empty disables the redis cache
	RedisPassword string `yaml:"-"`          // env only
}

// MetricsConfig holds the metrics listener address.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ReportConfig drives the end-of-day report task.
type ReportConfig struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
}

// BrokerConfig holds broker credentials, loaded from the environment.
type BrokerConfig struct {
	AppKey     string
	AppSecret  string
	AccountNo  string
	TOTPSecret string // optional second factor for OTP-secured accounts
	BaseURL    string
}

// NotifyConfig holds notification credentials, loaded from the environment.
type NotifyConfig struct {
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Default returns the built-in configuration matching the documented
// strategy defaults.
func Default() *Config {
	return &Config{
		Mode: ModeSimulation,
		Selector: SelectorConfig{
			TopVolumeCount:       30,
			MinScore:             5,
			VolumeSurgeThreshold: 2.0,
			VolumeAvgWindow:      0,
			VolatilityBreakoutK:  0.5,
			MAShortPeriod:        5,
			MALongPeriod:         20,
			MACDFast:             12,
			MACDSlow:             26,
			MACDSignal:           9,
			StochasticK:          14,
			StochasticD:          3,
			StochasticOversold:   20,
			SupportTolerance:     0.01,
			Weights: SignalWeights{
				VolumeSurge:        3,
				GoldenCross:        3,
				MABreakout:         2,
				VolatilityBreakout: 2,
				MACDBuy:            2,
				StochasticBuy:      2,
				OBVRising:          1,
				SupportAtMA:        1,
				OrderBookImbalance: 0,
			},
		},
		Risk: RiskConfig{
			StopLossPercent:     2.5,
			TakeProfitPercent:   5.0,
			TrailingStopEnabled: true,
			TrailingStopPercent: 1.5,
			RiskPercent:         2.0,
			MaxPositionSize:     1_000_000,
			MaxPositions:        5,
			DailyLossLimit:      -5.0,
			OvernightHold:       false,
			OvernightMinProfit:  2.0,
			MaxSingleStockRatio: 0.2,
		},
		Engine: EngineConfig{
			TickInterval:    30 * time.Second,
			SyncInterval:    time.Hour,
			HistoryDays:     30,
			BrokerTimeout:   7 * time.Second,
			MaxConnFailures: 3,
		},
		Market: MarketConfig{
			OpenTime:      "09:00",
			CloseTime:     "15:30",
			NearCloseTime: "15:20",
		},
		Store: StoreConfig{
			SQLitePath: "data/redarrow.db",
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Report: ReportConfig{
			Dir:      "reports",
			Interval: 10 * time.Minute,
		},
	}
}

// Load reads the YAML file at path (optional — a missing path keeps the
// defaults) and then applies environment overrides for credentials.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.Mode = strings.ToLower(getEnv("TRADING_MODE", cfg.Mode))

	cfg.Broker = BrokerConfig{
		AppKey:     os.Getenv("KIS_APP_KEY"),
		AppSecret:  os.Getenv("KIS_APP_SECRET"),
		AccountNo:  os.Getenv("KIS_ACCOUNT_NO"),
		TOTPSecret: os.Getenv("KIS_TOTP_SECRET"),
		BaseURL:    os.Getenv("KIS_BASE_URL"),
	}
	cfg.Notify = NotifyConfig{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		WebhookURL:       os.Getenv("ALERT_WEBHOOK_URL"),
	}
	cfg.Store.RedisAddr = getEnv("REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.RedisPassword = os.Getenv("REDIS_PASSWORD")

	return cfg, nil
}

// Validate checks required parameters and ranges. A non-nil error means
// the process must not enter the trading loop.
func (c *Config) Validate() error {
	if c.Mode != ModeSimulation && c.Mode != ModeReal {
		return fmt.Errorf("config: mode must be %q or %q, got %q", ModeSimulation, ModeReal, c.Mode)
	}
	if c.Mode == ModeReal {
		if c.Broker.AppKey == "" || c.Broker.AppSecret == "" || c.Broker.AccountNo == "" {
			return fmt.Errorf("config: real mode requires KIS_APP_KEY, KIS_APP_SECRET and KIS_ACCOUNT_NO")
		}
	}

	s := c.Selector
	if s.TopVolumeCount <= 0 {
		return fmt.Errorf("config: top_volume_count must be positive, got %d", s.TopVolumeCount)
	}
	if s.MinScore < 0 || s.MinScore > s.Weights.Total() {
		return fmt.Errorf("config: min_score %d outside [0, %d]", s.MinScore, s.Weights.Total())
	}
	if s.MAShortPeriod <= 0 || s.MALongPeriod <= 0 || s.MAShortPeriod >= s.MALongPeriod {
		return fmt.Errorf("config: ma periods invalid (short=%d long=%d)", s.MAShortPeriod, s.MALongPeriod)
	}
	if s.MACDFast <= 0 || s.MACDSlow <= 0 || s.MACDSignal <= 0 || s.MACDFast >= s.MACDSlow {
		return fmt.Errorf("config: macd periods invalid (fast=%d slow=%d signal=%d)", s.MACDFast, s.MACDSlow, s.MACDSignal)
	}
	if s.StochasticK <= 0 || s.StochasticD <= 0 {
		return fmt.Errorf("config: stochastic periods invalid (k=%d d=%d)", s.StochasticK, s.StochasticD)
	}
	if s.VolumeSurgeThreshold <= 0 {
		return fmt.Errorf("config: volume_surge_threshold must be positive")
	}
	if s.SupportTolerance < 0 || s.SupportTolerance > 1 {
		return fmt.Errorf("config: support_tolerance must be a fraction in [0,1]")
	}

	r := c.Risk
	if r.StopLossPercent <= 0 {
		return fmt.Errorf("config: stop_loss_percent must be positive, got %v", r.StopLossPercent)
	}
	if r.TakeProfitPercent <= 0 {
		return fmt.Errorf("config: take_profit_percent must be positive, got %v", r.TakeProfitPercent)
	}
	if r.TrailingStopEnabled && r.TrailingStopPercent <= 0 {
		return fmt.Errorf("config: trailing_stop_percent must be positive when enabled")
	}
	if r.RiskPercent <= 0 || r.RiskPercent > 100 {
		return fmt.Errorf("config: risk_percent must be in (0,100], got %v", r.RiskPercent)
	}
	if r.MaxPositionSize <= 0 {
		return fmt.Errorf("config: max_position_size must be positive")
	}
	if r.MaxPositions <= 0 {
		return fmt.Errorf("config: max_positions must be positive, got %d", r.MaxPositions)
	}
	if r.DailyLossLimit >= 0 {
		return fmt.Errorf("config: daily_loss_limit must be negative, got %v", r.DailyLossLimit)
	}
	if r.MaxSingleStockRatio <= 0 || r.MaxSingleStockRatio > 1 {
		return fmt.Errorf("config: max_single_stock_ratio must be a fraction in (0,1]")
	}

	e := c.Engine
	if e.TickInterval <= 0 || e.BrokerTimeout <= 0 {
		return fmt.Errorf("config: tick_interval and broker_timeout must be positive")
	}
	if e.HistoryDays < c.HistoryLookback() {
		return fmt.Errorf("config: history_days %d below the longest signal lookback %d",
			e.HistoryDays, c.HistoryLookback())
	}

	if _, err := c.Session(); err != nil {
		return err
	}
	return nil
}

// HistoryLookback returns the number of bars the longest enabled signal
// needs. Symbols with fewer bars contribute no candidate.
func (c *Config) HistoryLookback() int {
	s := c.Selector
	lookback := s.MALongPeriod + 1        // golden cross needs two defined MA points
	if n := s.MACDSlow + 1; n > lookback { // macd cross needs two defined points
		lookback = n
	}
	if n := s.StochasticK + s.StochasticD; n > lookback {
		lookback = n
	}
	if s.VolumeAvgWindow > lookback {
		lookback = s.VolumeAvgWindow
	}
	return lookback
}

// Session parses the market window into a markethours.Session.
func (c *Config) Session() (markethours.Session, error) {
	s := markethours.DefaultSession()
	var err error
	if s.OpenHour, s.OpenMinute, err = parseHHMM(c.Market.OpenTime); err != nil {
		return s, fmt.Errorf("config: open_time: %w", err)
	}
	if s.CloseHour, s.CloseMinute, err = parseHHMM(c.Market.CloseTime); err != nil {
		return s, fmt.Errorf("config: close_time: %w", err)
	}
	if s.NearCloseHour, s.NearCloseMinute, err = parseHHMM(c.Market.NearCloseTime); err != nil {
		return s, fmt.Errorf("config: near_close_time: %w", err)
	}
	open := s.OpenHour*60 + s.OpenMinute
	close := s.CloseHour*60 + s.CloseMinute
	near := s.NearCloseHour*60 + s.NearCloseMinute
	if open >= close || near > close || near < open {
		return s, fmt.Errorf("config: market window inconsistent (open=%s near_close=%s close=%s)",
			c.Market.OpenTime, c.Market.NearCloseTime, c.Market.CloseTime)
	}
	return s, nil
}

func parseHHMM(v string) (int, int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", v)
	}
	return h, m, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
