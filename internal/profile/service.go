package profile

import (
	"context"
	"sync"
	"time"

	"github.com/prefd-io/prefd/internal/eventbus"
	"github.com/prefd-io/prefd/internal/profile/store"
)

const sourceService = "profile.service"

// LifecycleEvent describes a profile lifecycle change published on the bus.
type LifecycleEvent struct {
	Kind    string // created, switched, deleted
	Profile *store.Profile
	ID      string
}

// Service is the public surface of the profile core. It owns the in-memory
// state projection, routes every durable operation through the manager, and
// coalesces setting edits into debounced autosaves. All operations are
// serialised through one mutex: the design assumes a single logical writer.
type Service struct {
	st       *store.Store
	manager  *Manager
	autosave *Coalescer
	clock    Clock
	bus      *eventbus.Bus

	mu    sync.Mutex
	state State
}

// ServiceOption customises service construction.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	clock Clock
	bus   *eventbus.Bus
	delay time.Duration
}

// WithClock injects a clock; tests use a virtual one.
func WithClock(clock Clock) ServiceOption {
	return func(c *serviceConfig) { c.clock = clock }
}

// WithBus attaches an event bus for state-change notifications.
func WithBus(bus *eventbus.Bus) ServiceOption {
	return func(c *serviceConfig) { c.bus = bus }
}

// WithAutosaveDelay overrides the debounce quiet window.
func WithAutosaveDelay(d time.Duration) ServiceOption {
	return func(c *serviceConfig) { c.delay = d }
}

// NewService builds the profile service over an open store.
func NewService(st *store.Store, opts ...ServiceOption) *Service {
	cfg := serviceConfig{clock: SystemClock(), delay: DefaultAutosaveDelay}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Service{
		st:      st,
		manager: NewManager(st, cfg.clock),
		clock:   cfg.clock,
		bus:     cfg.bus,
	}
	s.autosave = NewCoalescer(cfg.clock, cfg.delay, func(p *store.Profile) error {
		return st.SaveCurrentProfile(context.Background(), p)
	})
	return s
}

// dispatch advances the projection and notifies watchers. Callers hold s.mu.
func (s *Service) dispatch(a Action) {
	s.state = Reduce(s.state, a)
	if s.bus != nil {
		s.bus.Publish(eventbus.TopicStateChanged, sourceService, s.state.Clone())
	}
}

func (s *Service) publishLifecycle(ev LifecycleEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.TopicProfileLifecycle, sourceService, ev)
	}
}

// LoadConfig reads both slots and projects them into memory. Known settings
// missing from the current profile are filled with their defaults at this
// boundary.
func (s *Service) LoadConfig(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dispatch(LoadStarted{})

	current, err := s.st.LoadCurrentProfile(ctx)
	if err != nil {
		s.dispatch(LoadFailed{Message: err.Error()})
		return s.state.Clone(), err
	}
	list, err := s.st.LoadProfiles(ctx)
	if err != nil {
		s.dispatch(LoadFailed{Message: err.Error()})
		return s.state.Clone(), err
	}

	if current != nil {
		current = current.Clone()
		current.Settings = ApplyDefaults(current.Settings)
	}

	s.dispatch(LoadSucceeded{Current: current, Profiles: list})
	return s.state.Clone(), nil
}

// SaveConfig merges upd into the current profile and persists it to both
// slots. The merge base is the in-memory current profile, so edits still
// sitting in the autosave window are never lost to a durable save.
func (s *Service) SaveConfig(ctx context.Context, upd Update) (*store.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.state.CurrentProfile
	if current == nil {
		return nil, store.NotFoundError{Entity: "current profile"}
	}

	s.dispatch(SaveStarted{})
	s.autosave.Discard() // superseded by this explicit save

	full := store.CloneSettings(current.Settings)
	if full == nil {
		full = map[string]any{}
	}
	for k, v := range upd.Settings {
		full[k] = v
	}

	merged, err := s.manager.UpdateByID(ctx, current.ID, Update{Settings: full, Name: upd.Name})
	if err != nil {
		s.dispatch(SaveFailed{Message: err.Error()})
		return nil, err
	}

	s.dispatch(SaveSucceeded{Profile: merged})
	return merged, nil
}

// CreateProfile allocates a new profile. Any pending autosave is flushed
// first so a copy-from-current creation copies the latest edits.
func (s *Service) CreateProfile(ctx context.Context, req CreateRequest) (*store.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.autosave.Flush(); err != nil {
		return nil, err
	}

	created, err := s.manager.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.dispatch(ProfileCreated{Profile: created})
	s.publishLifecycle(LifecycleEvent{Kind: "created", Profile: created, ID: created.ID})
	return created, nil
}

// SwitchProfile adopts the target profile as current. The pending coalesced
// write for the outgoing profile is flushed before the switch-out flush, so
// the latest edit always wins over the stale in-memory snapshot.
func (s *Service) SwitchProfile(ctx context.Context, id string) (*store.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.autosave.Flush(); err != nil {
		return nil, err
	}

	target, err := s.manager.Switch(ctx, id, s.state.CurrentProfile.Clone())
	if err != nil {
		return nil, err
	}

	target = target.Clone()
	target.Settings = ApplyDefaults(target.Settings)

	s.dispatch(ProfileSwitched{Profile: target})
	s.publishLifecycle(LifecycleEvent{Kind: "switched", Profile: target, ID: target.ID})
	return target, nil
}

// DeleteProfile removes a profile. A pending autosave for the deleted
// profile is discarded so the debounce timer cannot resurrect its pointer
// slot; otherwise the pending write is flushed first. The in-memory
// projection nils the pointer on current-delete while the durable layer
// repoints, so the state is reconciled by reloading afterwards.
func (s *Service) DeleteProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.state.CurrentProfile; current != nil && current.ID == id {
		s.autosave.Discard()
	} else if err := s.autosave.Flush(); err != nil {
		return err
	}

	if err := s.manager.Delete(ctx, id); err != nil {
		return err
	}

	s.dispatch(ProfileDeleted{ID: id})
	s.publishLifecycle(LifecycleEvent{Kind: "deleted", ID: id})

	// Reconcile with the durable layer's repoint decision.
	current, err := s.st.LoadCurrentProfile(ctx)
	if err != nil {
		return err
	}
	list, err := s.st.LoadProfiles(ctx)
	if err != nil {
		return err
	}
	if current != nil {
		current = current.Clone()
		current.Settings = ApplyDefaults(current.Settings)
	}
	s.dispatch(LoadSucceeded{Current: current, Profiles: list})
	return nil
}

// UpdateSetting applies one key/value edit to the current profile: an
// immediate in-memory update plus a best-effort coalesced durable write. A
// durable read inside the quiet window observes the previous value; that
// staleness is the intended coalescing trade-off.
func (s *Service) UpdateSetting(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentProfile == nil {
		return store.NotFoundError{Entity: "current profile"}
	}

	normalised, err := ValidateSetting(key, value)
	if err != nil {
		return err
	}

	s.dispatch(SettingUpdated{Key: key, Value: normalised, At: s.clock.Now().UTC()})
	s.autosave.Put(s.state.CurrentProfile.Clone())
	return nil
}

// GetSetting reads a setting from the in-memory current profile. Known keys
// fall back to their descriptor default when absent; the second return
// reports whether the profile itself carried the key.
func (s *Service) GetSetting(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentProfile != nil {
		if value, ok := s.state.CurrentProfile.Settings[key]; ok {
			return value, true
		}
	}
	if desc, known := knownSettings[key]; known {
		return desc.Default, false
	}
	return nil, false
}

// Summaries lists the stored profiles without their settings payloads.
func (s *Service) Summaries(ctx context.Context) ([]store.Summary, error) {
	return s.manager.Summaries(ctx)
}

// State returns a snapshot of the in-memory projection.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Close flushes any pending autosave so the last quiet-window edit is not
// lost on shutdown.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autosave.Flush()
}
