package store

import "time"

// Profile is a named, versioned bag of settings with its own identity.
type Profile struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Settings  map[string]any `json:"settings"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Version   int            `json:"version"`
}

// Summary is a reduced projection of a profile used for listing without
// transferring the full settings bag.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summarize returns the listing projection of the profile.
func (p *Profile) Summarize() Summary {
	return Summary{ID: p.ID, Name: p.Name, UpdatedAt: p.UpdatedAt}
}

// Clone returns a deep copy of the profile. Mutating the clone's settings
// never affects the original.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Settings = CloneSettings(p.Settings)
	return &out
}

// CloneSettings deep-copies a settings bag. Nested maps and slices (the
// shapes JSON decoding produces) are copied recursively; scalars are
// copied by value.
func CloneSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneSettings(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
