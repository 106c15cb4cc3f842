package procconfig

// Update is a whitelisted partial update. Nil pointers leave the
// corresponding field untouched; only the fields named here can ever be
// merged into a Snapshot.
type Update struct {
	Process         *ProcessUpdate         `json:"process,omitempty"`
	TradingControls *TradingControlsUpdate `json:"trading_controls,omitempty"`
	TriggerConfig   *TriggerUpdate         `json:"trigger_config,omitempty"`
	RSSFlux         *FluxUpdate            `json:"rss_flux,omitempty"`
	TaskFlows       map[string]bool        `json:"task_flows,omitempty"`
}

// ProcessUpdate carries optional process settings fields.
type ProcessUpdate struct {
	ActiveFlux            *string  `json:"active_flux,omitempty"`
	TradeFrequencyHours   *int     `json:"trade_frequency_hours,omitempty"`
	MaxAIWeightedDaily    *float64 `json:"max_ai_weighted_daily,omitempty"`
	MaxAIWeightedPerTrade *float64 `json:"max_ai_weighted_per_trade,omitempty"`
}

// TradingControlsUpdate carries optional trading control fields.
type TradingControlsUpdate struct {
	MaxTradesPerDay    *int     `json:"max_trades_per_day,omitempty"`
	MaxAmountPerTrade  *float64 `json:"max_amount_per_trade,omitempty"`
	MaxExposureTotal   *float64 `json:"max_exposure_total,omitempty"`
	MaxSpreadTolerance *float64 `json:"max_spread_tolerance,omitempty"`
	MinLiquidity       *float64 `json:"min_liquidity,omitempty"`
	MinVolume24h       *float64 `json:"min_volume_24h,omitempty"`
	MinMarketAgeHours  *int     `json:"min_market_age_hours,omitempty"`
	MinProbability     *float64 `json:"min_probability,omitempty"`
	MaxProbability     *float64 `json:"max_probability,omitempty"`
}

// TriggerUpdate carries optional trigger config fields.
type TriggerUpdate struct {
	TriggerType   *string `json:"trigger_type,omitempty"`
	IntervalHours *int    `json:"interval_hours,omitempty"`
}

// FluxUpdate carries optional flux knob fields.
type FluxUpdate struct {
	ScanIntervalSeconds *int     `json:"scan_interval_seconds,omitempty"`
	BatchSize           *int     `json:"batch_size,omitempty"`
	ReviewThreshold     *int     `json:"review_threshold,omitempty"`
	MaxCache            *int     `json:"max_cache,omitempty"`
	MinConfidence       *float64 `json:"min_confidence,omitempty"`
}

// apply merges u into snap field by field.
func apply(snap *Snapshot, u Update) {
	if p := u.Process; p != nil {
		setStr(&snap.Process.ActiveFlux, p.ActiveFlux)
		setInt(&snap.Process.TradeFrequencyHours, p.TradeFrequencyHours)
		setFloat(&snap.Process.MaxAIWeightedDaily, p.MaxAIWeightedDaily)
		setFloat(&snap.Process.MaxAIWeightedPerTrade, p.MaxAIWeightedPerTrade)
	}
	if c := u.TradingControls; c != nil {
		setInt(&snap.TradingControls.MaxTradesPerDay, c.MaxTradesPerDay)
		setFloat(&snap.TradingControls.MaxAmountPerTrade, c.MaxAmountPerTrade)
		setFloat(&snap.TradingControls.MaxExposureTotal, c.MaxExposureTotal)
		setFloat(&snap.TradingControls.MaxSpreadTolerance, c.MaxSpreadTolerance)
		setFloat(&snap.TradingControls.MinLiquidity, c.MinLiquidity)
		setFloat(&snap.TradingControls.MinVolume24h, c.MinVolume24h)
		setInt(&snap.TradingControls.MinMarketAgeHours, c.MinMarketAgeHours)
		setFloat(&snap.TradingControls.MinProbability, c.MinProbability)
		setFloat(&snap.TradingControls.MaxProbability, c.MaxProbability)
	}
	if t := u.TriggerConfig; t != nil {
		setStr(&snap.TriggerConfig.TriggerType, t.TriggerType)
		setInt(&snap.TriggerConfig.IntervalHours, t.IntervalHours)
	}
	if f := u.RSSFlux; f != nil {
		setInt(&snap.RSSFlux.ScanIntervalSeconds, f.ScanIntervalSeconds)
		setInt(&snap.RSSFlux.BatchSize, f.BatchSize)
		setInt(&snap.RSSFlux.ReviewThreshold, f.ReviewThreshold)
		setInt(&snap.RSSFlux.MaxCache, f.MaxCache)
		setFloat(&snap.RSSFlux.MinConfidence, f.MinConfidence)
	}
	for id, enabled := range u.TaskFlows {
		if snap.TaskFlows == nil {
			snap.TaskFlows = map[string]bool{}
		}
		snap.TaskFlows[id] = enabled
	}
}

func setStr(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
