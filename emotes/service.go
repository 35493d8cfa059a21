// Package emotes implements the three-tier emote cache: process memory in
// front of the shared KV cache in front of Postgres, with upstream providers
// behind all three. Global emote sets are expensive to enumerate across
// providers and change rarely, so they carry a 30-day expiry and are only ever
// fetched by the daily cron path; channel emote sets are cheap to fetch and
// change often, so they refresh on demand with a 1-day expiry. On-demand code
// paths never call providers for the global scope; that restriction is the
// rate-limit budget.
package emotes

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/chatcore/telemetry"
)

const (
	// GlobalTTL is the persistence expiry for cron-refreshed global rows.
	GlobalTTL = 30 * 24 * time.Hour
	// ChannelTTL is the persistence expiry for on-demand channel rows.
	ChannelTTL = 24 * time.Hour

	// kvTTL bounds staleness of the shared KV tier; both scopes get refreshed
	// at least daily so the KV mirror never needs to live longer than that.
	kvTTL = 24 * time.Hour
	// memoryTTL bounds staleness of the per-process tier.
	memoryTTL = 10 * time.Minute

	lastRefreshKey       = "emotes:global:last_refresh"
	globalRefreshHorizon = 24 * time.Hour
)

// KV is the shared-cache surface the service consumes (see kvcache.Manager).
type KV interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetMany(ctx context.Context, entries map[string]any, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// Stats aggregates persisted emote counts plus the live memory-cache size.
type Stats struct {
	MemoryCacheSize int                       `json:"memory_cache_size"`
	ByPlatform      map[string]map[string]int `json:"by_platform"`
}

type memoryEntry struct {
	codes     Set
	expiresAt time.Time
}

// Service owns the emote cache tiers. The memory map is only mutated under mu;
// every other tier access is a plain call into the KV/DB clients.
type Service struct {
	db        *sql.DB
	kv        KV
	providers map[string]Provider

	mu     sync.RWMutex
	memory map[string]memoryEntry
}

// NewService builds a Service over the given store, shared cache, and providers.
func NewService(db *sql.DB, kv KV, providers ...Provider) *Service {
	s := &Service{
		db:        db,
		kv:        kv,
		providers: make(map[string]Provider, len(providers)),
		memory:    make(map[string]memoryEntry),
	}
	for _, p := range providers {
		s.providers[p.Platform()] = p
	}
	return s
}

// Platforms lists the registered provider platforms in stable order.
func (s *Service) Platforms() []string {
	out := make([]string, 0, len(s.providers))
	for platform := range s.providers {
		out = append(out, platform)
	}
	sort.Strings(out)
	return out
}

func cacheKey(platform, channelID string) string {
	scope := channelID
	if scope == "" {
		scope = "global"
	}
	return fmt.Sprintf("emotes:%s:%s", platform, scope)
}

// GetEmotes returns the emote codes visible in a channel (channel-specific
// plus platform-global), checking memory → shared KV → Postgres and, only when
// every tier misses, falling through to an on-demand refresh. Each hit
// populates the faster tiers on the way back up. Dependency failures degrade
// to an empty set; the dispatcher must treat that as "unavailable", not "none".
func (s *Service) GetEmotes(ctx context.Context, platform, channelID string, sources []string) Set {
	key := cacheKey(platform, channelID)

	if codes, ok := s.memoryGet(key); ok {
		telemetry.Inc(telemetry.EmoteMemoryHits)
		return codes
	}

	var cached []string
	found, err := s.kv.Get(ctx, key, &cached)
	if err != nil {
		slog.Warn("emote kv read failed", slog.String("key", key), slog.Any("err", err), slog.String("component", "emotes"))
	}
	if found {
		telemetry.Inc(telemetry.EmoteRedisHits)
		codes := setFromCodes(cached)
		s.memorySet(key, codes)
		return codes
	}

	codes, err := s.loadFromStore(ctx, platform, channelID, sources)
	if err != nil {
		slog.Error("emote store read failed", slog.String("key", key), slog.Any("err", err), slog.String("component", "emotes"))
		return Set{}
	}
	if len(codes) > 0 {
		telemetry.Inc(telemetry.EmoteDBHits)
		s.promote(ctx, key, codes)
		return codes
	}

	telemetry.Inc(telemetry.EmoteCacheMisses)
	return s.RefreshEmotes(ctx, platform, channelID, sources)
}

// IsEmote reports whether code is a known emote for the platform/channel.
func (s *Service) IsEmote(ctx context.Context, code, platform, channelID string) bool {
	return s.GetEmotes(ctx, platform, channelID, nil).Contains(code)
}

// RefreshEmotes refreshes a channel's emote set from its provider, persists
// the channel rows with a 1-day expiry, and repopulates both cache tiers. For
// the global scope (channelID "") it never calls the provider: the daily cron
// owns all global provider traffic, so a global refresh only re-reads what is
// persisted.
func (s *Service) RefreshEmotes(ctx context.Context, platform, channelID string, sources []string) Set {
	key := cacheKey(platform, channelID)

	if channelID == "" {
		codes, err := s.loadFromStore(ctx, platform, "", sources)
		if err != nil {
			slog.Error("global emote reload failed", slog.String("platform", platform), slog.Any("err", err), slog.String("component", "emotes"))
			return Set{}
		}
		s.promote(ctx, key, codes)
		return codes
	}

	provider, ok := s.providers[platform]
	if !ok {
		slog.Warn("no emote provider registered", slog.String("platform", platform), slog.String("component", "emotes"))
		codes, err := s.loadFromStore(ctx, platform, channelID, sources)
		if err != nil {
			return Set{}
		}
		return codes
	}

	telemetry.Inc(telemetry.EmoteProviderFetches)
	fetched, err := provider.FetchEmotes(ctx, channelID, sources)
	if err != nil {
		telemetry.Inc(telemetry.EmoteProviderFetchErrors)
		slog.Warn("channel emote fetch failed; serving persisted set",
			slog.String("platform", platform),
			slog.String("channel_id", channelID),
			slog.Any("err", err),
			slog.String("component", "emotes"))
		codes, err := s.loadFromStore(ctx, platform, channelID, sources)
		if err != nil {
			return Set{}
		}
		return codes
	}

	merged := make(Set, len(fetched))
	for _, e := range fetched {
		merged[e.Code] = struct{}{}
	}
	// Channel chat also accepts every platform-global emote.
	for code := range s.GetEmotes(ctx, platform, "", nil) {
		merged[code] = struct{}{}
	}

	if err := s.persistEmotes(ctx, platform, channelID, fetched, ChannelTTL); err != nil {
		slog.Error("channel emote persist failed; skipping cache population",
			slog.String("platform", platform),
			slog.String("channel_id", channelID),
			slog.Any("err", err),
			slog.String("component", "emotes"))
		// Faster tiers must never outlive the store; serve without caching.
		return merged
	}
	s.promote(ctx, key, merged)
	return merged
}

// RefreshGlobalEmotesCron is the only code path allowed to call providers for
// global emotes. It iterates every registered platform, persists the fetched
// sets with a 30-day expiry, repopulates the shared cache in one batch, sweeps
// expired rows, and records the run timestamp for NeedsGlobalRefresh. One
// platform failing is recorded as a 0 count and never aborts the others.
func (s *Service) RefreshGlobalEmotesCron(ctx context.Context) map[string]int {
	telemetry.Inc(telemetry.GlobalRefreshRuns)
	start := time.Now()
	results := make(map[string]int, len(s.providers))
	kvEntries := make(map[string]any)

	for _, platform := range s.Platforms() {
		provider := s.providers[platform]
		telemetry.Inc(telemetry.EmoteProviderFetches)
		fetched, err := provider.FetchEmotes(ctx, "", nil)
		if err != nil {
			telemetry.Inc(telemetry.EmoteProviderFetchErrors)
			slog.Error("global emote fetch failed",
				slog.String("platform", platform),
				slog.Any("err", err),
				slog.String("component", "emotes"))
			results[platform] = 0
			continue
		}
		if err := s.persistEmotes(ctx, platform, "", fetched, GlobalTTL); err != nil {
			slog.Error("global emote persist failed",
				slog.String("platform", platform),
				slog.Any("err", err),
				slog.String("component", "emotes"))
			results[platform] = 0
			continue
		}
		codes := make(Set, len(fetched))
		for _, e := range fetched {
			codes[e.Code] = struct{}{}
		}
		key := cacheKey(platform, "")
		kvEntries[key] = codes.Sorted()
		s.memorySet(key, codes)
		results[platform] = len(codes)
	}

	if len(kvEntries) > 0 {
		if err := s.kv.SetMany(ctx, kvEntries, kvTTL); err != nil {
			slog.Warn("global emote kv population failed", slog.Any("err", err), slog.String("component", "emotes"))
		}
	}
	if err := s.kv.Set(ctx, lastRefreshKey, time.Now().UTC().Format(time.RFC3339), 0); err != nil {
		slog.Warn("last-refresh timestamp write failed", slog.Any("err", err), slog.String("component", "emotes"))
	}
	if n, err := s.PurgeExpired(ctx); err != nil {
		slog.Warn("expired emote sweep failed", slog.Any("err", err), slog.String("component", "emotes"))
	} else if n > 0 {
		slog.Info("swept expired emote rows", slog.Int64("rows", n), slog.String("component", "emotes"))
	}
	if telemetry.RefreshDuration != nil {
		telemetry.RefreshDuration.Observe(time.Since(start).Seconds())
	}
	slog.Info("global emote refresh complete", slog.Any("counts", results), slog.String("component", "emotes"))
	return results
}

// NeedsGlobalRefresh reports whether the last cron run is more than 24h old
// (or unknown). The surrounding service drives scheduling off this.
func (s *Service) NeedsGlobalRefresh(ctx context.Context) bool {
	var stamp string
	found, err := s.kv.Get(ctx, lastRefreshKey, &stamp)
	if err != nil || !found {
		return true
	}
	last, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return true
	}
	return time.Since(last) > globalRefreshHorizon
}

// InvalidateCache drops a platform's entries from the memory and KV tiers.
// Persisted rows are untouched; the next lookup repopulates from Postgres.
func (s *Service) InvalidateCache(ctx context.Context, platform string) {
	s.mu.Lock()
	prefix := "emotes:" + platform + ":"
	for key := range s.memory {
		if strings.HasPrefix(key, prefix) {
			delete(s.memory, key)
		}
	}
	telemetry.SetEmoteMemoryEntries(len(s.memory))
	s.mu.Unlock()

	if n, err := s.kv.DeletePattern(ctx, prefix+"*"); err != nil {
		slog.Warn("emote kv invalidation failed", slog.String("platform", platform), slog.Any("err", err), slog.String("component", "emotes"))
	} else {
		slog.Info("emote kv invalidated", slog.String("platform", platform), slog.Int("keys", n), slog.String("component", "emotes"))
	}
}

// GetStats aggregates persisted counts grouped by platform and source plus the
// live memory-cache size.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	stats := Stats{MemoryCacheSize: len(s.memory), ByPlatform: make(map[string]map[string]int)}
	s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, emote_source, COUNT(*) FROM emote_cache WHERE expires_at > NOW() GROUP BY platform, emote_source`)
	if err != nil {
		return stats, fmt.Errorf("emote stats query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var platform, source string
		var count int
		if err := rows.Scan(&platform, &source, &count); err != nil {
			return stats, fmt.Errorf("emote stats scan: %w", err)
		}
		if stats.ByPlatform[platform] == nil {
			stats.ByPlatform[platform] = make(map[string]int)
		}
		stats.ByPlatform[platform][source] = count
	}
	return stats, rows.Err()
}

// PurgeExpired deletes rows past their expiry. Reads already exclude them;
// this is just the cleanup sweep.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM emote_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge expired emotes: %w", err)
	}
	return res.RowsAffected()
}

// --- tiers ------------------------------------------------------------------

func (s *Service) memoryGet(key string) (Set, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.memory[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.codes, true
}

func (s *Service) memorySet(key string, codes Set) {
	s.mu.Lock()
	s.memory[key] = memoryEntry{codes: codes, expiresAt: time.Now().Add(memoryTTL)}
	telemetry.SetEmoteMemoryEntries(len(s.memory))
	s.mu.Unlock()
}

// promote writes codes into the faster tiers, KV before memory, after the
// slower tier already holds them.
func (s *Service) promote(ctx context.Context, key string, codes Set) {
	if err := s.kv.Set(ctx, key, codes.Sorted(), kvTTL); err != nil {
		slog.Warn("emote kv population failed", slog.String("key", key), slog.Any("err", err), slog.String("component", "emotes"))
		return
	}
	s.memorySet(key, codes)
}

// loadFromStore reads unexpired codes from Postgres. A channel read unions the
// platform's global rows (channel_id IS NULL) with the channel's own rows.
func (s *Service) loadFromStore(ctx context.Context, platform, channelID string, sources []string) (Set, error) {
	q := `SELECT DISTINCT emote_code FROM emote_cache WHERE platform = $1 AND expires_at > NOW()`
	args := []any{platform}
	if channelID == "" {
		q += ` AND channel_id IS NULL`
	} else {
		q += ` AND (channel_id IS NULL OR channel_id = $2)`
		args = append(args, channelID)
	}
	if len(sources) > 0 {
		placeholders := make([]string, len(sources))
		for i, src := range sources {
			args = append(args, src)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		q += ` AND emote_source IN (` + strings.Join(placeholders, ",") + `)`
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	codes := make(Set)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes[code] = struct{}{}
	}
	return codes, rows.Err()
}

// persistEmotes upserts fetched rows with a fresh expiry inside one
// transaction, so a cancelled refresh leaves no partial scope behind.
func (s *Service) persistEmotes(ctx context.Context, platform, channelID string, fetched []Emote, ttl time.Duration) error {
	if len(fetched) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin emote persist: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	expiresAt := time.Now().UTC().Add(ttl)
	const channelUpsert = `INSERT INTO emote_cache (platform, channel_id, emote_source, emote_code, emote_id, emote_url, expires_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		ON CONFLICT (platform, channel_id, emote_source, emote_code) WHERE channel_id IS NOT NULL DO UPDATE SET
			emote_id=EXCLUDED.emote_id, emote_url=EXCLUDED.emote_url, expires_at=EXCLUDED.expires_at, updated_at=NOW()`
	const globalUpsert = `INSERT INTO emote_cache (platform, channel_id, emote_source, emote_code, emote_id, emote_url, expires_at, updated_at)
		VALUES ($1,NULL,$2,$3,$4,$5,$6,NOW())
		ON CONFLICT (platform, emote_source, emote_code) WHERE channel_id IS NULL DO UPDATE SET
			emote_id=EXCLUDED.emote_id, emote_url=EXCLUDED.emote_url, expires_at=EXCLUDED.expires_at, updated_at=NOW()`

	for _, e := range fetched {
		if channelID == "" {
			_, err = tx.ExecContext(ctx, globalUpsert, platform, e.Source, e.Code, e.ID, e.URL, expiresAt)
		} else {
			_, err = tx.ExecContext(ctx, channelUpsert, platform, channelID, e.Source, e.Code, e.ID, e.URL, expiresAt)
		}
		if err != nil {
			return fmt.Errorf("upsert emote %s/%s: %w", e.Source, e.Code, err)
		}
	}
	return tx.Commit()
}
