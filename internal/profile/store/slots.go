package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// The durable layout is two independently-keyed slots: one holds the
// current-profile pointer (a full profile copy), the other the ordered
// profile list.
const (
	slotCurrentProfile = "current_profile"
	slotProfileList    = "profiles"
)

// SaveCurrentProfile stamps updatedAt and overwrites the current-pointer slot.
func (s *Store) SaveCurrentProfile(ctx context.Context, profile *Profile) error {
	if s.readOnly {
		return fmt.Errorf("prefd: save current profile: store opened read-only")
	}
	if profile == nil {
		return fmt.Errorf("prefd: save current profile: nil profile")
	}

	stamped := profile.Clone()
	stamped.UpdatedAt = s.now().UTC()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return writeSlot(ctx, tx, s.instanceName, slotCurrentProfile, stamped)
	})
}

// LoadCurrentProfile returns the profile in the current-pointer slot, or nil
// when the slot has never been written. Decode failures degrade to nil: the
// caller falls back to "no profile selected" rather than crashing, at the
// cost of not being able to distinguish absent from corrupt.
func (s *Store) LoadCurrentProfile(ctx context.Context) (*Profile, error) {
	raw, err := s.readSlot(ctx, slotCurrentProfile)
	if err != nil {
		return nil, fmt.Errorf("prefd: load current profile: %w", err)
	}
	if raw == "" {
		return nil, nil
	}

	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		log.Printf("[ProfileStore] WARNING: corrupt current-profile slot, treating as empty: %v", err)
		return nil, nil
	}
	return &profile, nil
}

// ClearCurrentProfile removes the current-pointer slot entirely (no profile
// selected).
func (s *Store) ClearCurrentProfile(ctx context.Context) error {
	if s.readOnly {
		return fmt.Errorf("prefd: clear current profile: store opened read-only")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteSlot(ctx, tx, s.instanceName, slotCurrentProfile)
	})
}

// SaveProfiles performs a full replacement write of the profile list.
func (s *Store) SaveProfiles(ctx context.Context, profiles []Profile) error {
	if s.readOnly {
		return fmt.Errorf("prefd: save profiles: store opened read-only")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return writeSlot(ctx, tx, s.instanceName, slotProfileList, profiles)
	})
}

// LoadProfiles returns the stored profile list. An absent or corrupt slot
// yields an empty list, never an error; write-path failures still propagate.
func (s *Store) LoadProfiles(ctx context.Context) ([]Profile, error) {
	raw, err := s.readSlot(ctx, slotProfileList)
	if err != nil {
		return nil, fmt.Errorf("prefd: load profiles: %w", err)
	}
	if raw == "" {
		return []Profile{}, nil
	}

	var profiles []Profile
	if err := json.Unmarshal([]byte(raw), &profiles); err != nil {
		log.Printf("[ProfileStore] WARNING: corrupt profile-list slot, treating as empty: %v", err)
		return []Profile{}, nil
	}
	return profiles, nil
}

// SaveProfilesAndCurrent writes the profile list and the current-pointer
// slot in a single transaction, so the two slots can never be observed in a
// half-updated state. A nil current clears the pointer slot. The pointer
// profile's updatedAt is stamped exactly as SaveCurrentProfile would.
func (s *Store) SaveProfilesAndCurrent(ctx context.Context, profiles []Profile, current *Profile) error {
	if s.readOnly {
		return fmt.Errorf("prefd: save profiles and current: store opened read-only")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := writeSlot(ctx, tx, s.instanceName, slotProfileList, profiles); err != nil {
			return err
		}
		if current == nil {
			return deleteSlot(ctx, tx, s.instanceName, slotCurrentProfile)
		}
		stamped := current.Clone()
		stamped.UpdatedAt = s.now().UTC()
		return writeSlot(ctx, tx, s.instanceName, slotCurrentProfile, stamped)
	})
}

func (s *Store) readSlot(ctx context.Context, slot string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
        SELECT value FROM slots WHERE instance_name = ? AND slot = ?
    `, s.instanceName, slot).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func writeSlot(ctx context.Context, tx *sql.Tx, instance, slot string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("prefd: encode slot %s: %w", slot, err)
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO slots (instance_name, slot, value, updated_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(instance_name, slot) DO UPDATE SET
            value = excluded.value,
            updated_at = CURRENT_TIMESTAMP
    `, instance, slot, string(data)); err != nil {
		return fmt.Errorf("prefd: write slot %s: %w", slot, err)
	}
	return nil
}

func deleteSlot(ctx context.Context, tx *sql.Tx, instance, slot string) error {
	if _, err := tx.ExecContext(ctx, `
        DELETE FROM slots WHERE instance_name = ? AND slot = ?
    `, instance, slot); err != nil {
		return fmt.Errorf("prefd: delete slot %s: %w", slot, err)
	}
	return nil
}
