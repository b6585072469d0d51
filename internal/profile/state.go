package profile

import (
	"time"

	"github.com/prefd-io/prefd/internal/profile/store"
)

// State is the in-memory projection of persisted profile state. Consumers
// read it between operations; every transition goes through Reduce.
type State struct {
	CurrentProfile *store.Profile  `json:"currentProfile"`
	Profiles       []store.Profile `json:"profiles"`
	Loading        bool            `json:"loading"`
	Err            string          `json:"error,omitempty"`
}

// Clone returns a deep copy of the state, so callers can hold snapshots
// without observing later transitions.
func (s State) Clone() State {
	out := s
	out.CurrentProfile = s.CurrentProfile.Clone()
	if s.Profiles != nil {
		out.Profiles = make([]store.Profile, len(s.Profiles))
		for i := range s.Profiles {
			out.Profiles[i] = *s.Profiles[i].Clone()
		}
	}
	return out
}

// Action drives a state transition. Concrete actions mirror the durable
// operations that emitted them.
type Action interface {
	isAction()
}

type LoadStarted struct{}

type LoadSucceeded struct {
	Current  *store.Profile
	Profiles []store.Profile
}

type LoadFailed struct {
	Message string
}

type SaveStarted struct{}

type SaveSucceeded struct {
	Profile *store.Profile
}

type SaveFailed struct {
	Message string
}

type ProfileCreated struct {
	Profile *store.Profile
}

type ProfileSwitched struct {
	Profile *store.Profile
}

type ProfileDeleted struct {
	ID string
}

// SettingUpdated carries the timestamp so the transition stays a pure
// function of its inputs.
type SettingUpdated struct {
	Key   string
	Value any
	At    time.Time
}

func (LoadStarted) isAction()    {}
func (LoadSucceeded) isAction()  {}
func (LoadFailed) isAction()     {}
func (SaveStarted) isAction()    {}
func (SaveSucceeded) isAction()  {}
func (SaveFailed) isAction()     {}
func (ProfileCreated) isAction() {}
func (ProfileSwitched) isAction() {}
func (ProfileDeleted) isAction() {}
func (SettingUpdated) isAction() {}

// Reduce applies an action to a state and returns the successor state. It
// is total and synchronous: every action yields a state and none can fail.
// Inputs are never mutated.
func Reduce(s State, a Action) State {
	next := s.Clone()

	switch act := a.(type) {
	case LoadStarted:
		next.Loading = true
		next.Err = ""

	case LoadSucceeded:
		next.Loading = false
		next.CurrentProfile = act.Current.Clone()
		next.Profiles = cloneList(act.Profiles)

	case LoadFailed:
		next.Loading = false
		next.Err = act.Message

	case SaveStarted:
		next.Loading = true

	case SaveSucceeded:
		next.Loading = false
		next.CurrentProfile = act.Profile.Clone()
		for i := range next.Profiles {
			if next.Profiles[i].ID == act.Profile.ID {
				next.Profiles[i] = *act.Profile.Clone()
			}
		}

	case SaveFailed:
		next.Loading = false
		next.Err = act.Message

	case ProfileCreated:
		wasEmpty := len(next.Profiles) == 0
		next.Profiles = append(next.Profiles, *act.Profile.Clone())
		if wasEmpty {
			next.CurrentProfile = act.Profile.Clone()
		}

	case ProfileSwitched:
		next.CurrentProfile = act.Profile.Clone()

	case ProfileDeleted:
		kept := next.Profiles[:0]
		for _, p := range next.Profiles {
			if p.ID != act.ID {
				kept = append(kept, p)
			}
		}
		next.Profiles = kept
		// The in-memory layer clears the pointer unconditionally here; the
		// durable layer repoints to the first remaining profile instead.
		// Callers reconcile by reloading after a delete.
		if next.CurrentProfile != nil && next.CurrentProfile.ID == act.ID {
			next.CurrentProfile = nil
		}

	case SettingUpdated:
		if next.CurrentProfile == nil {
			return next
		}
		if next.CurrentProfile.Settings == nil {
			next.CurrentProfile.Settings = make(map[string]any, 1)
		}
		next.CurrentProfile.Settings[act.Key] = act.Value
		next.CurrentProfile.UpdatedAt = act.At
	}

	return next
}

func cloneList(profiles []store.Profile) []store.Profile {
	if profiles == nil {
		return nil
	}
	out := make([]store.Profile, len(profiles))
	for i := range profiles {
		out[i] = *profiles[i].Clone()
	}
	return out
}
