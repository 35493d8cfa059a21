// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	DetectionsTotal          prometheus.Counter
	DetectionsFailed         prometheus.Counter
	DetectionConsensusFull   prometheus.Counter
	DetectionConsensusMajor  prometheus.Counter
	DetectionTieBreaks       prometheus.Counter
	CommandLookups           prometheus.Counter
	CommandLookupHits        prometheus.Counter
	EmoteMemoryHits          prometheus.Counter
	EmoteRedisHits           prometheus.Counter
	EmoteDBHits              prometheus.Counter
	EmoteCacheMisses         prometheus.Counter
	EmoteProviderFetches     prometheus.Counter
	EmoteProviderFetchErrors prometheus.Counter
	GlobalRefreshRuns        prometheus.Counter

	// Histograms (seconds)
	DetectionDuration prometheus.Observer
	RefreshDuration   prometheus.Observer

	// Gauges
	CommandsLoadedGauge    prometheus.Gauge
	EmoteMemoryEntriesGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		DetectionsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_detections_total", Help: "Number of language detections attempted"})
		DetectionsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_detections_failed_total", Help: "Number of language detections where every classifier failed"})
		DetectionConsensusFull = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_detection_consensus_full_total", Help: "Detections where all classifiers agreed"})
		DetectionConsensusMajor = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_detection_consensus_majority_total", Help: "Detections resolved by a 2-of-3 majority vote"})
		DetectionTieBreaks = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_detection_tiebreaks_total", Help: "Detections resolved by the weighted tie-break"})
		CommandLookups = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_command_lookups_total", Help: "Number of command resolutions attempted"})
		CommandLookupHits = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_command_lookup_hits_total", Help: "Command resolutions that matched an entry"})
		EmoteMemoryHits = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_emote_memory_hits_total", Help: "Emote lookups served from process memory"})
		EmoteRedisHits = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_emote_redis_hits_total", Help: "Emote lookups served from the shared KV cache"})
		EmoteDBHits = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_emote_db_hits_total", Help: "Emote lookups served from Postgres"})
		EmoteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_emote_cache_misses_total", Help: "Emote lookups that missed every tier"})
		EmoteProviderFetches = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_emote_provider_fetches_total", Help: "Upstream emote provider fetch calls"})
		EmoteProviderFetchErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_emote_provider_fetch_errors_total", Help: "Upstream emote provider fetch failures"})
		GlobalRefreshRuns = promauto.NewCounter(prometheus.CounterOpts{Name: "chatcore_global_refresh_runs_total", Help: "Cron-driven global emote refresh runs"})
		DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatcore_detection_duration_seconds", Help: "Language detection duration seconds", Buckets: prometheus.DefBuckets})
		RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatcore_emote_refresh_duration_seconds", Help: "Emote refresh duration seconds", Buckets: prometheus.DefBuckets})
		CommandsLoadedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatcore_commands_loaded", Help: "Commands currently held in the in-memory routing table"})
		EmoteMemoryEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatcore_emote_memory_entries", Help: "Entries currently held in the process-memory emote cache"})
	})
}

// SetCommandsLoaded records the current in-memory routing table size.
func SetCommandsLoaded(n int) {
	if CommandsLoadedGauge != nil {
		CommandsLoadedGauge.Set(float64(n))
	}
}

// SetEmoteMemoryEntries records the current process-memory emote cache size.
func SetEmoteMemoryEntries(n int) {
	if EmoteMemoryEntriesGauge != nil {
		EmoteMemoryEntriesGauge.Set(float64(n))
	}
}

// Inc increments a counter if metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
