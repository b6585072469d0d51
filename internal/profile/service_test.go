package profile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prefd-io/prefd/internal/eventbus"
	"github.com/prefd-io/prefd/internal/profile/store"
)

func newTestService(t *testing.T, clock *fakeClock, opts ...ServiceOption) (*Service, *store.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "profiles.db")
	st, err := store.Open(store.Options{DBPath: dbPath, Now: clock.Now})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	opts = append([]ServiceOption{WithClock(clock)}, opts...)
	return NewService(st, opts...), st
}

func TestServiceFirstCreateBecomesCurrentInState(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	created, err := svc.CreateProfile(ctx, CreateRequest{Name: "work"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	state := svc.State()
	if state.CurrentProfile == nil || state.CurrentProfile.ID != created.ID {
		t.Errorf("state current = %+v, want %s", state.CurrentProfile, created.ID)
	}
	if len(state.Profiles) != 1 {
		t.Errorf("state profiles = %d, want 1", len(state.Profiles))
	}
}

func TestServiceLoadConfigAppliesDefaults(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.CreateProfile(ctx, CreateRequest{Name: "work"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	state, err := svc.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if state.Loading {
		t.Error("loading should be false after load")
	}
	if got := state.CurrentProfile.Settings["theme"]; got != "system" {
		t.Errorf("default theme = %v, want system", got)
	}
	if got := state.CurrentProfile.Settings["editor.fontSize"]; got != float64(14) {
		t.Errorf("default fontSize = %v, want 14", got)
	}
}

func TestServiceLoadConfigEmptyStore(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)

	state, err := svc.LoadConfig(context.Background())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if state.CurrentProfile != nil {
		t.Errorf("expected nil current on empty store, got %+v", state.CurrentProfile)
	}
	if len(state.Profiles) != 0 {
		t.Errorf("expected no profiles, got %d", len(state.Profiles))
	}
}

// updateSetting performs an immediate in-memory update but only a debounced
// durable write: a durable read inside the quiet window observes the stale
// value, and the write lands exactly once after 5 s of quiescence.
func TestServiceUpdateSettingStaleReadUntilFlush(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, st := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.CreateProfile(ctx, CreateRequest{Name: "A"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SaveConfig(ctx, Update{Settings: map[string]any{"theme": "dark"}}); err != nil {
		t.Fatalf("save config: %v", err)
	}

	if err := svc.UpdateSetting("theme", "light"); err != nil {
		t.Fatalf("update setting: %v", err)
	}

	// Immediate in-memory visibility.
	if got, _ := svc.GetSetting("theme"); got != "light" {
		t.Errorf("in-memory theme = %v, want light", got)
	}

	// Durable read inside the quiet window is stale.
	durable, err := st.LoadCurrentProfile(ctx)
	if err != nil {
		t.Fatalf("load current: %v", err)
	}
	if durable.Settings["theme"] != "dark" {
		t.Errorf("durable theme inside quiet window = %v, want dark (stale)", durable.Settings["theme"])
	}
	staleUpdatedAt := durable.UpdatedAt

	// After the quiet window the coalesced write lands with a fresh stamp.
	clock.Advance(5 * time.Second)
	durable, err = st.LoadCurrentProfile(ctx)
	if err != nil {
		t.Fatalf("load current after flush: %v", err)
	}
	if durable.Settings["theme"] != "light" {
		t.Errorf("durable theme after flush = %v, want light", durable.Settings["theme"])
	}
	if !durable.UpdatedAt.After(staleUpdatedAt) {
		t.Errorf("updatedAt not refreshed: %v vs %v", durable.UpdatedAt, staleUpdatedAt)
	}
}

func TestServiceUpdateSettingWithoutCurrentProfile(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)

	err := svc.UpdateSetting("theme", "light")
	if !store.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestServiceUpdateSettingRejectsWrongKind(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.CreateProfile(ctx, CreateRequest{Name: "work"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.UpdateSetting("autosave.enabled", "yes"); err == nil {
		t.Error("expected kind mismatch error for known bool setting")
	}
	// Unknown keys pass through unvalidated.
	if err := svc.UpdateSetting("plugin.custom", 42); err != nil {
		t.Errorf("unknown key should pass through, got %v", err)
	}
}

func TestServiceGetSettingFallsBackToDefault(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)

	value, fromProfile := svc.GetSetting("language")
	if fromProfile {
		t.Error("no profile carries the key, fromProfile should be false")
	}
	if value != "en" {
		t.Errorf("default language = %v, want en", value)
	}

	if value, _ := svc.GetSetting("does.not.exist"); value != nil {
		t.Errorf("unknown key = %v, want nil", value)
	}
}

// Switching away while an autosave is still pending must not lose the last
// edit: the pending coalesced write is flushed before the switch-out flush.
func TestServiceSwitchFlushesPendingAutosaveFirst(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, st := newTestService(t, clock)
	ctx := context.Background()

	a, err := svc.CreateProfile(ctx, CreateRequest{Name: "A"})
	if err != nil {
		t.Fatalf("create A: %v", err)
	}
	b, err := svc.CreateProfile(ctx, CreateRequest{Name: "B", CopyFromCurrent: boolPtr(false)})
	if err != nil {
		t.Fatalf("create B: %v", err)
	}

	if err := svc.UpdateSetting("theme", "midnight"); err != nil {
		t.Fatalf("update setting: %v", err)
	}
	// Switch before the 5 s quiet window elapses.
	clock.Advance(time.Second)
	if _, err := svc.SwitchProfile(ctx, b.ID); err != nil {
		t.Fatalf("switch: %v", err)
	}

	state := svc.State()
	if state.CurrentProfile.ID != b.ID {
		t.Errorf("current = %s, want %s", state.CurrentProfile.ID, b.ID)
	}

	list, err := st.LoadProfiles(ctx)
	if err != nil {
		t.Fatalf("load profiles: %v", err)
	}
	entry := list[indexOf(list, a.ID)]
	if entry.Settings["theme"] != "midnight" {
		t.Errorf("latest edit lost on switch: %v", entry.Settings)
	}

	// The stale timer must not fire later and clobber the new pointer.
	clock.Advance(time.Minute)
	current, err := st.LoadCurrentProfile(ctx)
	if err != nil {
		t.Fatalf("load current: %v", err)
	}
	if current.ID != b.ID {
		t.Errorf("stale autosave clobbered the pointer: %s", current.ID)
	}
}

func TestServiceSwitchMissingProfile(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.CreateProfile(ctx, CreateRequest{Name: "A"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := svc.SwitchProfile(ctx, "missing")
	if !store.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

// After deleting the current profile the reducer nils the pointer, but the
// service reconciles with the durable layer, which repoints to the first
// remaining entry.
func TestServiceDeleteCurrentReconcilesWithDurable(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	a, _ := svc.CreateProfile(ctx, CreateRequest{Name: "A"})
	b, _ := svc.CreateProfile(ctx, CreateRequest{Name: "B", CopyFromCurrent: boolPtr(false)})
	_ = b

	if err := svc.DeleteProfile(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	state := svc.State()
	if state.CurrentProfile == nil || state.CurrentProfile.ID != b.ID {
		t.Errorf("state not reconciled after delete: %+v", state.CurrentProfile)
	}
}

func TestServiceDeleteCurrentDiscardsPendingAutosave(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, st := newTestService(t, clock)
	ctx := context.Background()

	a, _ := svc.CreateProfile(ctx, CreateRequest{Name: "A"})
	b, _ := svc.CreateProfile(ctx, CreateRequest{Name: "B", CopyFromCurrent: boolPtr(false)})

	if err := svc.UpdateSetting("theme", "doomed"); err != nil {
		t.Fatalf("update setting: %v", err)
	}
	if err := svc.DeleteProfile(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The debounce timer for the deleted profile must not resurrect it.
	clock.Advance(time.Minute)
	current, err := st.LoadCurrentProfile(ctx)
	if err != nil {
		t.Fatalf("load current: %v", err)
	}
	if current == nil || current.ID != b.ID {
		t.Errorf("deleted profile resurrected in pointer slot: %+v", current)
	}
}

func TestServiceDeleteLastProfileClearsState(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	only, _ := svc.CreateProfile(ctx, CreateRequest{Name: "solo"})
	if err := svc.DeleteProfile(ctx, only.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	state := svc.State()
	if state.CurrentProfile != nil {
		t.Errorf("expected no current profile, got %+v", state.CurrentProfile)
	}
	if len(state.Profiles) != 0 {
		t.Errorf("expected empty list, got %d", len(state.Profiles))
	}
}

func TestServiceSaveConfigKeepsQuietWindowEdits(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.CreateProfile(ctx, CreateRequest{Name: "A"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.UpdateSetting("theme", "midnight"); err != nil {
		t.Fatalf("update setting: %v", err)
	}

	// Explicit save of an unrelated key inside the quiet window.
	saved, err := svc.SaveConfig(ctx, Update{Settings: map[string]any{"language": "fr"}})
	if err != nil {
		t.Fatalf("save config: %v", err)
	}
	if saved.Settings["theme"] != "midnight" {
		t.Error("quiet-window edit lost by explicit save")
	}
	if saved.Settings["language"] != "fr" {
		t.Errorf("explicit update missing: %v", saved.Settings)
	}
}

func TestServiceSaveConfigWithoutCurrent(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)

	_, err := svc.SaveConfig(context.Background(), Update{Settings: map[string]any{"theme": "x"}})
	if !store.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestServiceCloseFlushesPendingAutosave(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc, st := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.CreateProfile(ctx, CreateRequest{Name: "A"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.UpdateSetting("theme", "final"); err != nil {
		t.Fatalf("update setting: %v", err)
	}

	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	durable, err := st.LoadCurrentProfile(ctx)
	if err != nil {
		t.Fatalf("load current: %v", err)
	}
	if durable.Settings["theme"] != "final" {
		t.Errorf("pending edit lost on shutdown: %v", durable.Settings)
	}
}

func TestServicePublishesStateSnapshots(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	bus := eventbus.New()
	svc, _ := newTestService(t, clock, WithBus(bus))
	ctx := context.Background()

	sub := bus.Subscribe(eventbus.TopicStateChanged)
	defer sub.Close()

	if _, err := svc.CreateProfile(ctx, CreateRequest{Name: "A"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case env := <-sub.C():
		snapshot, ok := env.Payload.(State)
		if !ok {
			t.Fatalf("payload type %T, want State", env.Payload)
		}
		if len(snapshot.Profiles) != 1 {
			t.Errorf("snapshot profiles = %d, want 1", len(snapshot.Profiles))
		}
	default:
		t.Fatal("expected state snapshot on bus")
	}
}
