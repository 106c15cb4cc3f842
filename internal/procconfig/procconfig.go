// Package procconfig holds the runtime-mutable trading process
// configuration: hard trading controls, AI-weighted fractions, trigger
// policy, and the flux scan knobs. Unlike the static TOML config, this
// state can be updated while the process runs and is persisted to a JSON
// document.
package procconfig

import (
	"fmt"
	"strings"
)

// TradingControls are the hard trading limits and market filters.
type TradingControls struct {
	MaxTradesPerDay    int     `json:"max_trades_per_day"`
	MaxAmountPerTrade  float64 `json:"max_amount_per_trade"`
	MaxExposureTotal   float64 `json:"max_exposure_total"`
	MaxSpreadTolerance float64 `json:"max_spread_tolerance"`
	MinLiquidity       float64 `json:"min_liquidity"`
	MinVolume24h       float64 `json:"min_volume_24h"`
	MinMarketAgeHours  int     `json:"min_market_age_hours"`
	MinProbability     float64 `json:"min_probability"`
	MaxProbability     float64 `json:"max_probability"`
}

// Validate checks the controls for internal consistency.
func (c TradingControls) Validate() error {
	var errs []string
	if c.MaxTradesPerDay < 0 || c.MaxAmountPerTrade < 0 || c.MaxExposureTotal < 0 ||
		c.MinLiquidity < 0 || c.MinVolume24h < 0 || c.MinMarketAgeHours < 0 {
		errs = append(errs, "trading controls must be non-negative")
	}
	if c.MaxAmountPerTrade > c.MaxExposureTotal {
		errs = append(errs, "max_amount_per_trade cannot exceed max_exposure_total")
	}
	if c.MinProbability < 0 || c.MinProbability > 1 {
		errs = append(errs, "min_probability must be between 0 and 1")
	}
	if c.MinProbability >= c.MaxProbability {
		errs = append(errs, "min_probability must be < max_probability")
	}
	if c.MaxSpreadTolerance < 0 || c.MaxSpreadTolerance > 1 {
		errs = append(errs, "max_spread_tolerance must be between 0 and 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("trading controls: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ProcessSettings select the live pipeline and the AI-weighted fractions of
// the hard caps usable by the automated path.
type ProcessSettings struct {
	ActiveFlux            string  `json:"active_flux"`
	TradeFrequencyHours   int     `json:"trade_frequency_hours"`
	MaxAIWeightedDaily    float64 `json:"max_ai_weighted_daily"`
	MaxAIWeightedPerTrade float64 `json:"max_ai_weighted_per_trade"`
}

// Validate checks the process settings.
func (p ProcessSettings) Validate() error {
	var errs []string
	if p.TradeFrequencyHours < 1 {
		errs = append(errs, "trade_frequency_hours must be >= 1")
	}
	if p.MaxAIWeightedDaily < 0 || p.MaxAIWeightedDaily > 1 {
		errs = append(errs, "max_ai_weighted_daily must be between 0 and 1")
	}
	if p.MaxAIWeightedPerTrade < 0 || p.MaxAIWeightedPerTrade > 1 {
		errs = append(errs, "max_ai_weighted_per_trade must be between 0 and 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("process settings: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Trigger types accepted by TriggerSettings.
const (
	TriggerManual   = "manual"
	TriggerInterval = "interval"
	TriggerRSS      = "rss"
)

var validTriggerTypes = map[string]bool{
	TriggerManual:   true,
	TriggerInterval: true,
	TriggerRSS:      true,
}

// TriggerSettings configure how scan cycles are initiated.
type TriggerSettings struct {
	TriggerType   string `json:"trigger_type"`
	IntervalHours int    `json:"interval_hours"`
}

// Validate checks the trigger settings.
func (t TriggerSettings) Validate() error {
	var errs []string
	if !validTriggerTypes[t.TriggerType] {
		errs = append(errs, fmt.Sprintf("unknown trigger_type %q (valid: manual, interval, rss)", t.TriggerType))
	}
	if t.IntervalHours < 1 || t.IntervalHours > 168 {
		errs = append(errs, "interval_hours must be between 1 and 168")
	}
	if len(errs) > 0 {
		return fmt.Errorf("trigger config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// FluxSettings are the scan/batch knobs of the market flux pipeline.
type FluxSettings struct {
	ScanIntervalSeconds int     `json:"scan_interval_seconds"`
	BatchSize           int     `json:"batch_size"`
	ReviewThreshold     int     `json:"review_threshold"`
	MaxCache            int     `json:"max_cache"`
	MinConfidence       float64 `json:"min_confidence"`
}

// Validate checks the flux settings.
func (f FluxSettings) Validate() error {
	var errs []string
	if f.ScanIntervalSeconds < 5 {
		errs = append(errs, "scan_interval_seconds must be >= 5")
	}
	if f.BatchSize < 1 {
		errs = append(errs, "batch_size must be >= 1")
	}
	if f.ReviewThreshold < 1 {
		errs = append(errs, "review_threshold must be >= 1")
	}
	if f.MaxCache < 1 {
		errs = append(errs, "max_cache must be >= 1")
	}
	if f.MinConfidence < 0 || f.MinConfidence > 1 {
		errs = append(errs, "min_confidence must be between 0 and 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("rss_flux: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Snapshot is a full, immutable copy of the runtime configuration.
type Snapshot struct {
	Process         ProcessSettings `json:"process"`
	TradingControls TradingControls `json:"trading_controls"`
	TriggerConfig   TriggerSettings `json:"trigger_config"`
	RSSFlux         FluxSettings    `json:"rss_flux"`
	TaskFlows       map[string]bool `json:"task_flows"`
	LastUpdated     string          `json:"last_updated"`
}

// Validate checks every sub-config and returns the first failure.
func (s Snapshot) Validate() error {
	if err := s.Process.Validate(); err != nil {
		return err
	}
	if err := s.TradingControls.Validate(); err != nil {
		return err
	}
	if err := s.TriggerConfig.Validate(); err != nil {
		return err
	}
	return s.RSSFlux.Validate()
}

// Defaults returns the built-in runtime configuration.
func Defaults() Snapshot {
	return Snapshot{
		Process: ProcessSettings{
			ActiveFlux:            "polymarket_manager",
			TradeFrequencyHours:   4,
			MaxAIWeightedDaily:    1.0,
			MaxAIWeightedPerTrade: 1.0,
		},
		TradingControls: TradingControls{
			MaxTradesPerDay:    10,
			MaxAmountPerTrade:  500.0,
			MaxExposureTotal:   5000.0,
			MaxSpreadTolerance: 0.05,
			MinLiquidity:       10_000.0,
			MinVolume24h:       5_000.0,
			MinMarketAgeHours:  24,
			MinProbability:     0.55,
			MaxProbability:     0.95,
		},
		TriggerConfig: TriggerSettings{
			TriggerType:   TriggerInterval,
			IntervalHours: 4,
		},
		RSSFlux: FluxSettings{
			ScanIntervalSeconds: 300,
			BatchSize:           50,
			ReviewThreshold:     25,
			MaxCache:            500,
			MinConfidence:       0.65,
		},
		TaskFlows: map[string]bool{
			"batch_orchestration": true,
		},
	}
}
