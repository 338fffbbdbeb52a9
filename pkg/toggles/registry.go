package toggles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mercator-hq/saturn/pkg/audit"
	"mercator-hq/saturn/pkg/ledger"
	"mercator-hq/saturn/pkg/notify"
)

// SystemScope is the audit chain scope used for scope-independent
// registry events.
const SystemScope = "system"

// Built-in safety toggles. All default to locked: only the configured
// human-approver role can flip them, never the autonomous recommender.
const (
	AutonomousExecutionAllowed = "autonomous-execution-allowed"
	AutonomousApprovalAllowed  = "autonomous-approval-allowed"
	SafetyOverrideAllowed      = "safety-override-allowed"
)

// Toggle is a named boolean switch.
type Toggle struct {
	// Name identifies the toggle.
	Name string

	// Enabled is the current switch position.
	Enabled bool

	// Locked restricts mutation to the human-approver role.
	Locked bool

	// ControlledBy is the role that owns this toggle.
	ControlledBy string

	// UpdatedAt is when the toggle last changed.
	UpdatedAt time.Time
}

// Registry is the single mutation entry point for feature toggles.
type Registry struct {
	mu           sync.RWMutex
	toggles      map[string]*Toggle
	approverRole string
	store        ledger.Store
	chain        *audit.Chain
	notifier     notify.Notifier
	logger       *slog.Logger
	clock        func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock overrides the registry's time source. Used in tests.
func WithRegistryClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry creates a toggle registry. The built-in safety toggles are
// seeded enabled and locked; persisted rows loaded later via Restore
// override seed positions but never unlock a built-in.
func NewRegistry(approverRole string, store ledger.Store, chain *audit.Chain, notifier notify.Notifier, opts ...RegistryOption) *Registry {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}

	r := &Registry{
		toggles:      make(map[string]*Toggle),
		approverRole: approverRole,
		store:        store,
		chain:        chain,
		notifier:     notifier,
		logger:       slog.Default().With("component", "toggles.registry"),
		clock:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}

	// Execution defaults on so normal operation flows; the approval and
	// override escape hatches default off until a human enables them.
	builtins := map[string]bool{
		AutonomousExecutionAllowed: true,
		AutonomousApprovalAllowed:  false,
		SafetyOverrideAllowed:      false,
	}
	for name, enabled := range builtins {
		r.toggles[name] = &Toggle{
			Name:         name,
			Enabled:      enabled,
			Locked:       true,
			ControlledBy: approverRole,
		}
	}

	return r
}

// Seed registers a configured toggle without going through the locked
// check. Seeding never unlocks a built-in safety toggle.
func (r *Registry) Seed(toggle Toggle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.toggles[toggle.Name]; ok && existing.Locked {
		toggle.Locked = true
		toggle.ControlledBy = existing.ControlledBy
	}
	copied := toggle
	r.toggles[toggle.Name] = &copied
}

// Restore loads persisted toggle rows from the ledger, overriding seeded
// switch positions. Locked flags of built-ins are preserved.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	rows, err := r.store.ListToggles(ctx)
	if err != nil {
		return fmt.Errorf("restore toggles: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range rows {
		toggle := &Toggle{
			Name:         row.Name,
			Enabled:      row.Enabled,
			Locked:       row.Locked,
			ControlledBy: row.ControlledBy,
			UpdatedAt:    row.UpdatedAt,
		}
		if existing, ok := r.toggles[row.Name]; ok && existing.Locked {
			toggle.Locked = true
			toggle.ControlledBy = existing.ControlledBy
		}
		r.toggles[row.Name] = toggle
	}
	return nil
}

// Get returns the named toggle.
func (r *Registry) Get(name string) (Toggle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	toggle, ok := r.toggles[name]
	if !ok {
		return Toggle{}, &UnknownToggleError{Name: name}
	}
	return *toggle, nil
}

// Enabled reports whether the named toggle is on. Unknown toggles read
// as disabled so gated callers fail closed.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	toggle, ok := r.toggles[name]
	return ok && toggle.Enabled
}

// List returns all toggles sorted by name.
func (r *Registry) List() []Toggle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Toggle, 0, len(r.toggles))
	for _, toggle := range r.toggles {
		list = append(list, *toggle)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Set flips the named toggle. A locked toggle can only be flipped by the
// configured human-approver role; the check happens here and nowhere
// else, for every caller. Successful mutations are persisted and
// appended to the audit chain.
func (r *Registry) Set(ctx context.Context, name string, enabled bool, actorRole string) error {
	r.mu.Lock()

	toggle, ok := r.toggles[name]
	if !ok {
		r.mu.Unlock()
		return &UnknownToggleError{Name: name}
	}

	if toggle.Locked && actorRole != r.approverRole {
		locked := &LockedError{Name: name, ActorRole: actorRole, RequiredRole: r.approverRole}
		r.mu.Unlock()

		r.logger.Warn("locked toggle mutation rejected",
			"toggle", name,
			"actor_role", actorRole,
		)
		return locked
	}

	previous := toggle.Enabled
	toggle.Enabled = enabled
	toggle.UpdatedAt = r.clock()
	snapshot := *toggle
	r.mu.Unlock()

	if r.store != nil {
		row := &ledger.ToggleRow{
			Name:         snapshot.Name,
			Enabled:      snapshot.Enabled,
			Locked:       snapshot.Locked,
			ControlledBy: snapshot.ControlledBy,
			UpdatedAt:    snapshot.UpdatedAt,
		}
		if err := r.store.SaveToggle(ctx, row); err != nil {
			return fmt.Errorf("persist toggle %q: %w", name, err)
		}
	}

	if r.chain != nil {
		payload, err := json.Marshal(map[string]any{
			"toggle":     name,
			"enabled":    enabled,
			"previous":   previous,
			"actor_role": actorRole,
		})
		if err == nil {
			if _, err := r.chain.Append(ctx, SystemScope, "toggle.changed", payload); err != nil {
				r.logger.Error("toggle change not audited", "toggle", name, "error", err)
			}
		}
	}

	r.notifier.Notify(notify.Event{
		Kind:    notify.KindToggleChanged,
		Summary: fmt.Sprintf("Toggle %q set to %t", name, enabled),
		Fields: map[string]string{
			"toggle":     name,
			"enabled":    fmt.Sprintf("%t", enabled),
			"actor_role": actorRole,
		},
	})

	r.logger.Info("toggle changed",
		"toggle", name,
		"enabled", enabled,
		"actor_role", actorRole,
	)
	return nil
}
