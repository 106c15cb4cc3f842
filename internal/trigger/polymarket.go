package trigger

import "sync"

// PipelinePolymarket is the pipeline name the manager's triggers register
// under.
const PipelinePolymarket = "polymarket"

var (
	registerOnce    sync.Once
	defaultRegistry = NewRegistry()
)

// EnsureRegistered returns the process registry with the polymarket trigger
// specs registered. The first call populates the registry; later calls are
// no-ops, so any code path needing the registry can call it safely.
func EnsureRegistered() *Registry {
	registerOnce.Do(func() {
		registerPolymarket(defaultRegistry)
	})
	return defaultRegistry
}

// registerPolymarket adds the three polymarket scan triggers. Registration
// errors are impossible on an empty registry.
func registerPolymarket(r *Registry) {
	intervalFields := SettingsModel{
		"trigger_type":   {Type: "string", Description: "scan trigger mode: manual, interval or rss"},
		"interval_hours": {Type: "int", Description: "hours between scans, 1 to 168"},
	}

	_ = r.Register(Spec{
		Pipeline:    PipelinePolymarket,
		Trigger:     "interval",
		Description: "scan markets on a fixed schedule",
		Settings:    intervalFields,
	})
	_ = r.Register(Spec{
		Pipeline:    PipelinePolymarket,
		Trigger:     "manual",
		Description: "scan markets only when explicitly requested",
		Settings:    intervalFields,
	})
	_ = r.Register(Spec{
		Pipeline:    PipelinePolymarket,
		Trigger:     "rss",
		Description: "scan markets when the feed cache accumulates enough candidates",
		Settings: SettingsModel{
			"trigger_type":          {Type: "string", Description: "scan trigger mode: manual, interval or rss"},
			"interval_hours":        {Type: "int", Description: "hours between scans, 1 to 168"},
			"scan_interval_seconds": {Type: "int", Description: "seconds between feed polls, minimum 5"},
			"batch_size":            {Type: "int", Description: "markets fetched per scan"},
			"review_threshold":      {Type: "int", Description: "pending candidates required before a batch runs"},
			"max_cache":             {Type: "int", Description: "upper bound on cached candidates"},
			"min_confidence":        {Type: "float", Description: "minimum decision confidence admitted to execution"},
		},
	})
}
