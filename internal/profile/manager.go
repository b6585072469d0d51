package profile

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/prefd-io/prefd/internal/profile/store"
	"github.com/prefd-io/prefd/internal/validate"
)

// Manager orchestrates profile CRUD on top of the slot store and owns the
// consistency rules between the list slot and the current-pointer slot.
// Every mutating call runs a read-modify-write of the full list; the mutex
// serialises them so two callers can never race against the same list
// snapshot and lose an append.
type Manager struct {
	st    *store.Store
	clock Clock
	newID func() string

	mu sync.Mutex
}

// NewManager builds a manager over st. A nil clock falls back to wall time.
func NewManager(st *store.Store, clock Clock) *Manager {
	if clock == nil {
		clock = SystemClock()
	}
	return &Manager{st: st, clock: clock, newID: uuid.NewString}
}

// CreateRequest describes a profile creation. CopyFromCurrent defaults to
// true: the new profile starts with a deep copy of the current profile's
// settings unless explicitly disabled.
type CreateRequest struct {
	Name            string
	CopyFromCurrent *bool
}

// Update describes a profile mutation: settings are shallow-merged into the
// existing bag, a non-nil Name replaces the profile name.
type Update struct {
	Settings map[string]any
	Name     *string
}

// Create allocates a fresh profile and appends it to the list. When the
// list was empty beforehand the new profile also becomes current.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*store.Profile, error) {
	if err := validate.ProfileName(req.Name); err != nil {
		return nil, NameError{Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.st.LoadProfiles(ctx)
	if err != nil {
		return nil, err
	}

	settings := map[string]any{}
	if req.CopyFromCurrent == nil || *req.CopyFromCurrent {
		current, err := m.st.LoadCurrentProfile(ctx)
		if err != nil {
			return nil, err
		}
		if current != nil {
			settings = store.CloneSettings(current.Settings)
		}
	}

	now := m.clock.Now().UTC()
	profile := &store.Profile{
		ID:        m.newID(),
		Name:      req.Name,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	wasEmpty := len(list) == 0
	list = append(list, *profile.Clone())

	if wasEmpty {
		if err := m.st.SaveProfilesAndCurrent(ctx, list, profile); err != nil {
			return nil, err
		}
	} else if err := m.st.SaveProfiles(ctx, list); err != nil {
		return nil, err
	}

	return profile, nil
}

// UpdateByID merges upd into the profile identified by id and writes the
// list back. When id matches the current pointer, the pointer slot is
// rewritten with the identical merged result in the same transaction.
func (m *Manager) UpdateByID(ctx context.Context, id string, upd Update) (*store.Profile, error) {
	if upd.Name != nil {
		if err := validate.ProfileName(*upd.Name); err != nil {
			return nil, NameError{Err: err}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.st.LoadProfiles(ctx)
	if err != nil {
		return nil, err
	}

	idx := indexOf(list, id)
	if idx < 0 {
		return nil, store.NotFoundError{Entity: "profile", Key: id}
	}

	merged := list[idx].Clone()
	if len(upd.Settings) > 0 {
		normalised, err := ValidateSettings(upd.Settings)
		if err != nil {
			return nil, err
		}
		if merged.Settings == nil {
			merged.Settings = make(map[string]any, len(normalised))
		}
		for k, v := range normalised {
			merged.Settings[k] = v
		}
	}
	if upd.Name != nil {
		merged.Name = *upd.Name
	}
	merged.UpdatedAt = m.clock.Now().UTC()
	list[idx] = *merged.Clone()

	current, err := m.st.LoadCurrentProfile(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil && current.ID == id {
		if err := m.st.SaveProfilesAndCurrent(ctx, list, merged); err != nil {
			return nil, err
		}
	} else if err := m.st.SaveProfiles(ctx, list); err != nil {
		return nil, err
	}

	return merged, nil
}

// Delete removes the profile from the list. When the removed profile was
// current, the pointer is repointed to the first remaining entry in list
// order, or cleared when none remain.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.st.LoadProfiles(ctx)
	if err != nil {
		return err
	}

	idx := indexOf(list, id)
	if idx < 0 {
		return store.NotFoundError{Entity: "profile", Key: id}
	}
	list = append(list[:idx], list[idx+1:]...)

	current, err := m.st.LoadCurrentProfile(ctx)
	if err != nil {
		return err
	}
	if current == nil || current.ID != id {
		return m.st.SaveProfiles(ctx, list)
	}

	var next *store.Profile
	if len(list) > 0 {
		next = list[0].Clone()
	}
	return m.st.SaveProfilesAndCurrent(ctx, list, next)
}

// Switch adopts the profile identified by id as current. The outgoing
// profile the caller holds in memory is persisted first (switch-out flush):
// its list entry is replaced and stamped in the same transaction that
// repoints the pointer slot, so the latest in-memory edits survive the
// switch. Callers must flush any pending coalesced autosave for the
// outgoing profile before calling Switch.
func (m *Manager) Switch(ctx context.Context, id string, outgoing *store.Profile) (*store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.st.LoadProfiles(ctx)
	if err != nil {
		return nil, err
	}

	idx := indexOf(list, id)
	if idx < 0 {
		return nil, store.NotFoundError{Entity: "profile", Key: id}
	}

	if outgoing != nil && outgoing.ID != id {
		if outIdx := indexOf(list, outgoing.ID); outIdx >= 0 {
			flushed := outgoing.Clone()
			flushed.UpdatedAt = m.clock.Now().UTC()
			list[outIdx] = *flushed
		}
	}

	target := list[idx].Clone()
	if err := m.st.SaveProfilesAndCurrent(ctx, list, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Summaries maps the stored list to listing projections, preserving order.
func (m *Manager) Summaries(ctx context.Context) ([]store.Summary, error) {
	list, err := m.st.LoadProfiles(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]store.Summary, 0, len(list))
	for i := range list {
		summaries = append(summaries, list[i].Summarize())
	}
	return summaries, nil
}

func indexOf(list []store.Profile, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
