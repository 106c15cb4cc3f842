package trigger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/quantleap/polyflux/internal/procconfig"
)

// ExtractSettings projects the subset of the runtime config owned by one
// polymarket trigger. Interval and manual triggers own only the trigger
// config; the rss trigger additionally owns the flux scan knobs. Nothing
// else from the config tree is ever exposed here.
func ExtractSettings(triggerName string, snap procconfig.Snapshot) (map[string]any, error) {
	switch triggerName {
	case procconfig.TriggerInterval, procconfig.TriggerManual:
		return map[string]any{
			"trigger_type":   snap.TriggerConfig.TriggerType,
			"interval_hours": snap.TriggerConfig.IntervalHours,
		}, nil
	case procconfig.TriggerRSS:
		return map[string]any{
			"trigger_type":          snap.TriggerConfig.TriggerType,
			"interval_hours":        snap.TriggerConfig.IntervalHours,
			"scan_interval_seconds": snap.RSSFlux.ScanIntervalSeconds,
			"batch_size":            snap.RSSFlux.BatchSize,
			"review_threshold":      snap.RSSFlux.ReviewThreshold,
			"max_cache":             snap.RSSFlux.MaxCache,
			"min_confidence":        snap.RSSFlux.MinConfidence,
		}, nil
	default:
		return nil, fmt.Errorf("trigger: unknown trigger %q", triggerName)
	}
}

// rssSettingsPayload is the full settings surface of the rss trigger. The
// interval and manual triggers accept only its first two fields.
type rssSettingsPayload struct {
	TriggerType         *string  `json:"trigger_type"`
	IntervalHours       *int     `json:"interval_hours"`
	ScanIntervalSeconds *int     `json:"scan_interval_seconds"`
	BatchSize           *int     `json:"batch_size"`
	ReviewThreshold     *int     `json:"review_threshold"`
	MaxCache            *int     `json:"max_cache"`
	MinConfidence       *float64 `json:"min_confidence"`
}

// ApplySettings decodes a settings payload for one trigger into a partial
// config update touching only that trigger's fields. Unknown fields are
// rejected, which is what keeps one trigger's update from clobbering
// another trigger's configuration.
func ApplySettings(triggerName string, payload []byte) (procconfig.Update, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	switch triggerName {
	case procconfig.TriggerInterval, procconfig.TriggerManual:
		var in struct {
			TriggerType   *string `json:"trigger_type"`
			IntervalHours *int    `json:"interval_hours"`
		}
		if err := dec.Decode(&in); err != nil {
			return procconfig.Update{}, fmt.Errorf("trigger: decode %s settings: %w", triggerName, err)
		}
		return procconfig.Update{
			TriggerConfig: &procconfig.TriggerUpdate{
				TriggerType:   in.TriggerType,
				IntervalHours: in.IntervalHours,
			},
		}, nil

	case procconfig.TriggerRSS:
		var in rssSettingsPayload
		if err := dec.Decode(&in); err != nil {
			return procconfig.Update{}, fmt.Errorf("trigger: decode rss settings: %w", err)
		}
		u := procconfig.Update{
			TriggerConfig: &procconfig.TriggerUpdate{
				TriggerType:   in.TriggerType,
				IntervalHours: in.IntervalHours,
			},
		}
		if in.ScanIntervalSeconds != nil || in.BatchSize != nil || in.ReviewThreshold != nil ||
			in.MaxCache != nil || in.MinConfidence != nil {
			u.RSSFlux = &procconfig.FluxUpdate{
				ScanIntervalSeconds: in.ScanIntervalSeconds,
				BatchSize:           in.BatchSize,
				ReviewThreshold:     in.ReviewThreshold,
				MaxCache:            in.MaxCache,
				MinConfidence:       in.MinConfidence,
			}
		}
		return u, nil

	default:
		return procconfig.Update{}, fmt.Errorf("trigger: unknown trigger %q", triggerName)
	}
}
