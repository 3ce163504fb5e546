package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate, got: %v", err)
	}
}

func TestDefaultWeights_Total(t *testing.T) {
	if got := Default().Selector.Weights.Total(); got != 16 {
		t.Errorf("default weight total = %d, want 16", got)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		frag   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "paper" }, "mode"},
		{"zero stop loss", func(c *Config) { c.Risk.StopLossPercent = 0 }, "stop_loss_percent"},
		{"positive daily loss limit", func(c *Config) { c.Risk.DailyLossLimit = 5 }, "daily_loss_limit"},
		{"zero max positions", func(c *Config) { c.Risk.MaxPositions = 0 }, "max_positions"},
		{"short >= long MA", func(c *Config) { c.Selector.MAShortPeriod = 20 }, "ma periods"},
		{"min score above total", func(c *Config) { c.Selector.MinScore = 99 }, "min_score"},
		{"short history", func(c *Config) { c.Engine.HistoryDays = 5 }, "history_days"},
		{"bad open time", func(c *Config) { c.Market.OpenTime = "nine" }, "open_time"},
		{"close before open", func(c *Config) { c.Market.CloseTime = "08:00" }, "market window"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.frag) {
				t.Errorf("error %q does not mention %q", err, tc.frag)
			}
		})
	}
}

func TestValidate_RealModeRequiresCredentials(t *testing.T) {
	cfg := Default()
	cfg.Mode = ModeReal
	if err := cfg.Validate(); err == nil {
		t.Fatal("real mode without credentials must fail validation")
	}
	cfg.Broker = BrokerConfig{AppKey: "k", AppSecret: "s", AccountNo: "12345678-01"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("real mode with credentials: %v", err)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
selector:
  top_volume_count: 50
  min_score: 7
risk:
  stop_loss_percent: 3.0
  max_positions: 3
market:
  near_close_time: "15:10"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Selector.TopVolumeCount != 50 {
		t.Errorf("top_volume_count = %d, want 50", cfg.Selector.TopVolumeCount)
	}
	if cfg.Selector.MinScore != 7 {
		t.Errorf("min_score = %d, want 7", cfg.Selector.MinScore)
	}
	if cfg.Risk.MaxPositions != 3 {
		t.Errorf("max_positions = %d, want 3", cfg.Risk.MaxPositions)
	}
	// untouched key keeps its default
	if cfg.Risk.TakeProfitPercent != 5.0 {
		t.Errorf("take_profit_percent default lost: %v", cfg.Risk.TakeProfitPercent)
	}
	s, err := cfg.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if s.NearCloseHour != 15 || s.NearCloseMinute != 10 {
		t.Errorf("near close = %02d:%02d, want 15:10", s.NearCloseHour, s.NearCloseMinute)
	}
}

func TestHistoryLookback(t *testing.T) {
	cfg := Default()
	// Default MACD slow (26) dominates: 26+1 = 27.
	if got := cfg.HistoryLookback(); got != 27 {
		t.Errorf("HistoryLookback = %d, want 27", got)
	}
	cfg.Selector.VolumeAvgWindow = 40
	if got := cfg.HistoryLookback(); got != 40 {
		t.Errorf("HistoryLookback with wide volume window = %d, want 40", got)
	}
}
