// Package registry maintains the command routing table: command → owning module,
// permission level, cooldown, and enablement, scoped per community with fallback
// to a global scope. Lookups are served from in-memory maps that mirror the
// commands table in Postgres; mutations write through to Postgres first and only
// touch the maps after the row is durable, so a persistence failure never
// corrupts the loaded state.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/onnwee/chatcore/telemetry"
)

// PermissionLevel is enforced by the dispatcher, not the registry; the registry
// only stores and serves it.
type PermissionLevel string

const (
	PermEveryone  PermissionLevel = "everyone"
	PermMember    PermissionLevel = "member"
	PermModerator PermissionLevel = "moderator"
	PermAdmin     PermissionLevel = "admin"
	PermOwner     PermissionLevel = "owner"
)

// Valid reports whether p is one of the known levels.
func (p PermissionLevel) Valid() bool {
	switch p {
	case PermEveryone, PermMember, PermModerator, PermAdmin, PermOwner:
		return true
	}
	return false
}

// Scope identifies the namespace a command lives in: either the global scope
// (applies to all communities unless shadowed) or one specific community.
type Scope struct {
	communityID int64
	global      bool
}

// GlobalScope returns the scope shared by all communities.
func GlobalScope() Scope { return Scope{global: true} }

// CommunityScope returns the scope for one community (guild/channel tenant).
func CommunityScope(id int64) Scope { return Scope{communityID: id} }

// IsGlobal reports whether s is the global scope.
func (s Scope) IsGlobal() bool { return s.global }

// CommunityID returns the community id; ok is false for the global scope.
func (s Scope) CommunityID() (id int64, ok bool) { return s.communityID, !s.global }

func (s Scope) String() string {
	if s.global {
		return "global"
	}
	return fmt.Sprintf("community(%d)", s.communityID)
}

// CommandInfo is one routing-table entry.
type CommandInfo struct {
	Command         string          `json:"command"`
	ModuleName      string          `json:"module_name"`
	ModuleURL       string          `json:"module_url"`
	Description     string          `json:"description"`
	Usage           string          `json:"usage"`
	Category        string          `json:"category"`
	PermissionLevel PermissionLevel `json:"permission_level"`
	IsEnabled       bool            `json:"is_enabled"`
	CooldownSeconds int             `json:"cooldown_seconds"`
	Scope           Scope           `json:"-"`
}

// ListOptions filters ListCommands output.
type ListOptions struct {
	Category        string
	IncludeDisabled bool
}

// Stats summarizes the loaded routing table for /status.
type Stats struct {
	GlobalCommands int `json:"global_commands"`
	Communities    int `json:"communities"`
	TotalCommands  int `json:"total_commands"`
}

// Registry owns the in-memory routing table and its Postgres system of record.
// The maps are only mutated by Registry methods, under mu; lookups never block
// on I/O once Initialize has run.
type Registry struct {
	db *sql.DB

	mu        sync.RWMutex
	global    map[string]CommandInfo
	community map[int64]map[string]CommandInfo
}

// New returns a Registry bound to the given database. Call Initialize before lookups.
func New(db *sql.DB) *Registry {
	return &Registry{
		db:        db,
		global:    make(map[string]CommandInfo),
		community: make(map[int64]map[string]CommandInfo),
	}
}

const loadQuery = `SELECT command, module_name, module_url, description, usage, category,
	permission_level, is_enabled, cooldown_seconds, community_id
	FROM commands WHERE is_active = TRUE`

// Initialize loads all active commands into the in-memory maps. It performs a
// full reload and is intended to run once at startup; use ReloadCommands to
// pick up external store mutations later.
func (r *Registry) Initialize(ctx context.Context) error {
	global, community, err := r.load(ctx)
	if err != nil {
		return fmt.Errorf("load commands: %w", err)
	}
	r.mu.Lock()
	r.global = global
	r.community = community
	r.mu.Unlock()
	r.updateGauge()
	slog.Info("command registry loaded",
		slog.Int("global", len(global)),
		slog.Int("communities", len(community)),
		slog.String("component", "registry"))
	return nil
}

// ReloadCommands clears both maps and re-runs the load step. On load failure the
// prior in-memory state is left untouched.
func (r *Registry) ReloadCommands(ctx context.Context) error { return r.Initialize(ctx) }

func (r *Registry) load(ctx context.Context) (map[string]CommandInfo, map[int64]map[string]CommandInfo, error) {
	rows, err := r.db.QueryContext(ctx, loadQuery)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	global := make(map[string]CommandInfo)
	community := make(map[int64]map[string]CommandInfo)
	for rows.Next() {
		var info CommandInfo
		var communityID sql.NullInt64
		if err := rows.Scan(&info.Command, &info.ModuleName, &info.ModuleURL, &info.Description,
			&info.Usage, &info.Category, &info.PermissionLevel, &info.IsEnabled,
			&info.CooldownSeconds, &communityID); err != nil {
			return nil, nil, err
		}
		if communityID.Valid {
			info.Scope = CommunityScope(communityID.Int64)
			m := community[communityID.Int64]
			if m == nil {
				m = make(map[string]CommandInfo)
				community[communityID.Int64] = m
			}
			m[info.Command] = info
		} else {
			info.Scope = GlobalScope()
			global[info.Command] = info
		}
	}
	return global, community, rows.Err()
}

// GetCommand resolves a command: community-scoped exact match first (when scope
// names a community), then fallback to the global scope. The second return is
// false when neither scope has the command.
//
// Contract note: GetCommand returns disabled entries too. Enablement, cooldown,
// and permission enforcement happen in the dispatcher, which needs to fetch a
// disabled command's metadata; callers that care must check IsEnabled. Only
// ListCommands filters on enablement.
func (r *Registry) GetCommand(command string, scope Scope) (CommandInfo, bool) {
	telemetry.Inc(telemetry.CommandLookups)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := scope.CommunityID(); ok {
		if m := r.community[id]; m != nil {
			if info, ok := m[command]; ok {
				telemetry.Inc(telemetry.CommandLookupHits)
				return info, true
			}
		}
	}
	if info, ok := r.global[command]; ok {
		telemetry.Inc(telemetry.CommandLookupHits)
		return info, true
	}
	return CommandInfo{}, false
}

// ListCommands unions community-scoped and global commands visible in the given
// scope, community entries shadowing global ones of the same name. Disabled
// commands are excluded unless opts.IncludeDisabled is set. Results are sorted
// by command name.
func (r *Registry) ListCommands(scope Scope, opts ListOptions) []CommandInfo {
	r.mu.RLock()
	merged := make(map[string]CommandInfo, len(r.global))
	for name, info := range r.global {
		merged[name] = info
	}
	if id, ok := scope.CommunityID(); ok {
		for name, info := range r.community[id] {
			merged[name] = info
		}
	}
	r.mu.RUnlock()

	out := make([]CommandInfo, 0, len(merged))
	for _, info := range merged {
		if !opts.IncludeDisabled && !info.IsEnabled {
			continue
		}
		if opts.Category != "" && info.Category != opts.Category {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// DefaultModuleURL is the conventional address for a module that didn't
// configure an explicit one.
func DefaultModuleURL(moduleName string) string {
	return fmt.Sprintf("http://%s:8000", moduleName)
}

// RegisterCommand upserts a command in its scope: store first, then the
// in-memory map. Registering an existing (command, scope) pair updates it; a
// soft-deleted row is reactivated. Returns false (and logs) on invalid input or
// persistence failure, leaving the in-memory map untouched.
func (r *Registry) RegisterCommand(ctx context.Context, info CommandInfo) bool {
	if info.Command == "" || info.ModuleName == "" {
		slog.Warn("register command: missing command or module name", slog.String("component", "registry"))
		return false
	}
	if info.PermissionLevel == "" {
		info.PermissionLevel = PermEveryone
	}
	if !info.PermissionLevel.Valid() {
		slog.Warn("register command: invalid permission level",
			slog.String("command", info.Command),
			slog.String("permission_level", string(info.PermissionLevel)),
			slog.String("component", "registry"))
		return false
	}
	if info.CooldownSeconds < 0 {
		slog.Warn("register command: negative cooldown", slog.String("command", info.Command), slog.String("component", "registry"))
		return false
	}
	if info.ModuleURL == "" {
		info.ModuleURL = DefaultModuleURL(info.ModuleName)
	}

	var err error
	if id, ok := info.Scope.CommunityID(); ok {
		_, err = r.db.ExecContext(ctx, `INSERT INTO commands
			(command, module_name, module_url, description, usage, category, permission_level, is_enabled, cooldown_seconds, community_id, is_active, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,TRUE,NOW())
			ON CONFLICT (command, community_id) WHERE community_id IS NOT NULL DO UPDATE SET
				module_name=EXCLUDED.module_name, module_url=EXCLUDED.module_url,
				description=EXCLUDED.description, usage=EXCLUDED.usage, category=EXCLUDED.category,
				permission_level=EXCLUDED.permission_level, is_enabled=EXCLUDED.is_enabled,
				cooldown_seconds=EXCLUDED.cooldown_seconds, is_active=TRUE, updated_at=NOW()`,
			info.Command, info.ModuleName, info.ModuleURL, info.Description, info.Usage,
			info.Category, info.PermissionLevel, info.IsEnabled, info.CooldownSeconds, id)
	} else {
		_, err = r.db.ExecContext(ctx, `INSERT INTO commands
			(command, module_name, module_url, description, usage, category, permission_level, is_enabled, cooldown_seconds, community_id, is_active, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULL,TRUE,NOW())
			ON CONFLICT (command) WHERE community_id IS NULL DO UPDATE SET
				module_name=EXCLUDED.module_name, module_url=EXCLUDED.module_url,
				description=EXCLUDED.description, usage=EXCLUDED.usage, category=EXCLUDED.category,
				permission_level=EXCLUDED.permission_level, is_enabled=EXCLUDED.is_enabled,
				cooldown_seconds=EXCLUDED.cooldown_seconds, is_active=TRUE, updated_at=NOW()`,
			info.Command, info.ModuleName, info.ModuleURL, info.Description, info.Usage,
			info.Category, info.PermissionLevel, info.IsEnabled, info.CooldownSeconds)
	}
	if err != nil {
		slog.Error("register command: persist failed",
			slog.String("command", info.Command),
			slog.String("scope", info.Scope.String()),
			slog.Any("err", err),
			slog.String("component", "registry"))
		return false
	}

	r.setEntry(info)
	r.updateGauge()
	return true
}

// UpdateCommand updates the store row matching (command, scope), with the
// global scope matching community_id IS NULL explicitly, and refreshes the
// in-memory entry. Returns false when no active row matched or persistence failed.
func (r *Registry) UpdateCommand(ctx context.Context, info CommandInfo) bool {
	if info.Command == "" {
		return false
	}
	if info.ModuleURL == "" && info.ModuleName != "" {
		info.ModuleURL = DefaultModuleURL(info.ModuleName)
	}

	var res sql.Result
	var err error
	const setClause = `UPDATE commands SET module_name=$2, module_url=$3, description=$4, usage=$5,
		category=$6, permission_level=$7, is_enabled=$8, cooldown_seconds=$9, updated_at=NOW()
		WHERE command=$1 AND is_active = TRUE`
	args := []any{info.Command, info.ModuleName, info.ModuleURL, info.Description, info.Usage,
		info.Category, info.PermissionLevel, info.IsEnabled, info.CooldownSeconds}
	if id, ok := info.Scope.CommunityID(); ok {
		res, err = r.db.ExecContext(ctx, setClause+` AND community_id = $10`, append(args, id)...)
	} else {
		res, err = r.db.ExecContext(ctx, setClause+` AND community_id IS NULL`, args...)
	}
	if err != nil {
		slog.Error("update command: persist failed",
			slog.String("command", info.Command),
			slog.String("scope", info.Scope.String()),
			slog.Any("err", err),
			slog.String("component", "registry"))
		return false
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false
	}

	r.setEntry(info)
	return true
}

// UnregisterCommand soft-deletes the command (is_active=false, row retained) and
// drops it from the in-memory map; a later reload won't bring it back.
func (r *Registry) UnregisterCommand(ctx context.Context, command string, scope Scope) bool {
	if !r.flagRow(ctx, command, scope, "is_active", false) {
		return false
	}
	r.mu.Lock()
	if id, ok := scope.CommunityID(); ok {
		if m := r.community[id]; m != nil {
			delete(m, command)
			if len(m) == 0 {
				delete(r.community, id)
			}
		}
	} else {
		delete(r.global, command)
	}
	r.mu.Unlock()
	r.updateGauge()
	return true
}

// EnableCommand flips is_enabled on in both store and cache.
func (r *Registry) EnableCommand(ctx context.Context, command string, scope Scope) bool {
	return r.setEnabled(ctx, command, scope, true)
}

// DisableCommand flips is_enabled off in both store and cache. The row stays
// active and the entry stays in the map; only listings exclude it.
func (r *Registry) DisableCommand(ctx context.Context, command string, scope Scope) bool {
	return r.setEnabled(ctx, command, scope, false)
}

func (r *Registry) setEnabled(ctx context.Context, command string, scope Scope, enabled bool) bool {
	if !r.flagRow(ctx, command, scope, "is_enabled", enabled) {
		return false
	}
	r.mu.Lock()
	if id, ok := scope.CommunityID(); ok {
		if m := r.community[id]; m != nil {
			if info, ok := m[command]; ok {
				info.IsEnabled = enabled
				m[command] = info
			}
		}
	} else if info, ok := r.global[command]; ok {
		info.IsEnabled = enabled
		r.global[command] = info
	}
	r.mu.Unlock()
	return true
}

// flagRow sets one boolean column on the active row matching (command, scope).
// column is a trusted identifier, never user input.
func (r *Registry) flagRow(ctx context.Context, command string, scope Scope, column string, value bool) bool {
	var res sql.Result
	var err error
	q := `UPDATE commands SET ` + column + `=$2, updated_at=NOW() WHERE command=$1 AND is_active = TRUE`
	if id, ok := scope.CommunityID(); ok {
		res, err = r.db.ExecContext(ctx, q+` AND community_id = $3`, command, value, id)
	} else {
		res, err = r.db.ExecContext(ctx, q+` AND community_id IS NULL`, command, value)
	}
	if err != nil {
		slog.Error("command flag update failed",
			slog.String("command", command),
			slog.String("scope", scope.String()),
			slog.String("column", column),
			slog.Any("err", err),
			slog.String("component", "registry"))
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (r *Registry) setEntry(info CommandInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := info.Scope.CommunityID(); ok {
		m := r.community[id]
		if m == nil {
			m = make(map[string]CommandInfo)
			r.community[id] = m
		}
		m[info.Command] = info
	} else {
		r.global[info.Command] = info
	}
}

// GetStats reports the current size of the loaded routing table.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := len(r.global)
	for _, m := range r.community {
		total += len(m)
	}
	return Stats{GlobalCommands: len(r.global), Communities: len(r.community), TotalCommands: total}
}

func (r *Registry) updateGauge() {
	telemetry.SetCommandsLoaded(r.GetStats().TotalCommands)
}
