package profile

import (
	"errors"
	"fmt"

	"github.com/prefd-io/prefd/internal/profile/store"
	"github.com/prefd-io/prefd/internal/validate"
)

// ValidationError reports a known setting carrying a value of the wrong kind.
type ValidationError struct {
	Key  string
	Want Kind
	Got  any
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("prefd: setting %q expects a %s, got %T", e.Key, e.Want, e.Got)
}

// KeyError reports a malformed setting key.
type KeyError struct {
	Key string
}

func (e KeyError) Error() string {
	return fmt.Sprintf("prefd: malformed setting key %q", e.Key)
}

// NameError reports an invalid profile name.
type NameError struct {
	Err error
}

func (e NameError) Error() string { return "prefd: " + e.Err.Error() }
func (e NameError) Unwrap() error { return e.Err }

// IsValidation returns true when err is (or wraps) an input validation
// failure: a bad setting value, a malformed key, or an invalid profile name.
func IsValidation(err error) bool {
	var ve ValidationError
	var ke KeyError
	var ne NameError
	return errors.As(err, &ve) || errors.As(err, &ke) || errors.As(err, &ne)
}

// Kind is the expected value shape of a known setting.
type Kind string

const (
	KindString Kind = "string"
	KindBool   Kind = "bool"
	KindNumber Kind = "number"
)

// Descriptor declares a known setting: its expected kind and the default
// applied when a profile does not carry the key. Keys outside this table are
// forward-compatible pass-through: stored and returned untouched.
type Descriptor struct {
	Key     string
	Kind    Kind
	Default any
}

var knownSettings = map[string]Descriptor{
	"theme":             {Key: "theme", Kind: KindString, Default: "system"},
	"language":          {Key: "language", Kind: KindString, Default: "en"},
	"editor.fontSize":   {Key: "editor.fontSize", Kind: KindNumber, Default: float64(14)},
	"autosave.enabled":  {Key: "autosave.enabled", Kind: KindBool, Default: true},
	"telemetry.enabled": {Key: "telemetry.enabled", Kind: KindBool, Default: false},
}

// KnownSettings returns a copy of the descriptor table.
func KnownSettings() map[string]Descriptor {
	out := make(map[string]Descriptor, len(knownSettings))
	for k, v := range knownSettings {
		out[k] = v
	}
	return out
}

// ValidateSetting checks the key format and the value against the
// descriptor for key, normalising numeric values to float64 (the shape JSON
// decoding produces). Well-formed unknown keys are accepted as-is.
func ValidateSetting(key string, value any) (any, error) {
	if !validate.SettingKey(key) {
		return nil, KeyError{Key: key}
	}
	desc, known := knownSettings[key]
	if !known {
		return value, nil
	}

	switch desc.Kind {
	case KindString:
		if _, ok := value.(string); !ok {
			return nil, ValidationError{Key: key, Want: KindString, Got: value}
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return nil, ValidationError{Key: key, Want: KindBool, Got: value}
		}
	case KindNumber:
		switch v := value.(type) {
		case float64:
		case float32:
			value = float64(v)
		case int:
			value = float64(v)
		case int64:
			value = float64(v)
		default:
			return nil, ValidationError{Key: key, Want: KindNumber, Got: value}
		}
	}
	return value, nil
}

// ValidateSettings applies ValidateSetting across a bag, returning the
// normalised copy. The input is not modified.
func ValidateSettings(settings map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(settings))
	for key, value := range settings {
		normalised, err := ValidateSetting(key, value)
		if err != nil {
			return nil, err
		}
		out[key] = normalised
	}
	return out, nil
}

// ApplyDefaults returns a copy of settings with defaults filled in for
// known keys the bag does not carry. Applied at the load boundary so
// consumers always observe a complete bag.
func ApplyDefaults(settings map[string]any) map[string]any {
	out := store.CloneSettings(settings)
	if out == nil {
		out = make(map[string]any, len(knownSettings))
	}
	for key, desc := range knownSettings {
		if _, present := out[key]; !present {
			out[key] = desc.Default
		}
	}
	return out
}
