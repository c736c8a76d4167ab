package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const profileColumns = "id, name, description, source, vendor, machine_id, process_id, filament_id, settings_overrides, created_at, updated_at"

// ErrProfileNameTaken is returned when a profile name collides with an
// existing profile.
var ErrProfileNameTaken = errors.New("profile name already in use")

// CreateProfile persists a new profile. Profile names must be unique.
func (s *Store) CreateProfile(ctx context.Context, profile *Profile) error {
	if profile == nil {
		return errors.New("profile is nil")
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = profile.CreatedAt
	}

	taken, err := s.profileNameExists(ctx, profile.Name, "")
	if err != nil {
		return err
	}
	if taken {
		return ErrProfileNameTaken
	}

	overrides, err := marshalMap(profile.SettingsOverrides)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID,
		profile.Name,
		nullableString(profile.Description),
		profile.Source,
		nullableString(profile.Vendor),
		nullableString(profile.MachineID),
		nullableString(profile.ProcessID),
		nullableString(profile.FilamentID),
		overrides,
		profile.CreatedAt.Format(time.RFC3339Nano),
		profile.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetProfile fetches a profile by identifier. Returns (nil, nil) when absent.
func (s *Store) GetProfile(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// ListProfiles returns a page of profiles ordered by name, optionally
// filtered by source, plus the total matching count.
func (s *Store) ListProfiles(ctx context.Context, source string, limit, offset int) ([]*Profile, int, error) {
	where := ""
	countArgs := []any{}
	if source != "" {
		where = " WHERE source = ?"
		countArgs = append(countArgs, source)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM profiles`+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}

	args := append(countArgs, limit, offset)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+profileColumns+` FROM profiles`+where+` ORDER BY name, id LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, total, rows.Err()
}

// CountProfiles returns how many profiles exist.
func (s *Store) CountProfiles(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM profiles`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return total, nil
}

// UpdateProfile applies a partial update and returns the updated profile.
// Settings overrides in the patch are merged key-wise into the stored
// overrides; other fields are replaced when the patch carries them. The read
// and write run in one transaction so concurrent patches cannot lose keys.
// Returns (nil, nil) when the profile does not exist.
func (s *Store) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update profile: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if patch.Name != nil && *patch.Name != profile.Name {
		var count int
		err := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(1) FROM profiles WHERE name = ? AND id != ?`,
			*patch.Name, id,
		).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("check profile name: %w", err)
		}
		if count > 0 {
			return nil, ErrProfileNameTaken
		}
		profile.Name = *patch.Name
	}
	if patch.Description != nil {
		profile.Description = *patch.Description
	}
	if patch.Vendor != nil {
		profile.Vendor = *patch.Vendor
	}
	if patch.MachineID != nil {
		profile.MachineID = *patch.MachineID
	}
	if patch.ProcessID != nil {
		profile.ProcessID = *patch.ProcessID
	}
	if patch.FilamentID != nil {
		profile.FilamentID = *patch.FilamentID
	}
	if len(patch.SettingsOverrides) > 0 {
		if profile.SettingsOverrides == nil {
			profile.SettingsOverrides = make(map[string]any, len(patch.SettingsOverrides))
		}
		for key, value := range patch.SettingsOverrides {
			profile.SettingsOverrides[key] = value
		}
	}
	profile.UpdatedAt = time.Now().UTC()

	overrides, err := marshalMap(profile.SettingsOverrides)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(
		ctx,
		`UPDATE profiles SET name = ?, description = ?, vendor = ?, machine_id = ?,
		 process_id = ?, filament_id = ?, settings_overrides = ?, updated_at = ?
		 WHERE id = ?`,
		profile.Name,
		nullableString(profile.Description),
		nullableString(profile.Vendor),
		nullableString(profile.MachineID),
		nullableString(profile.ProcessID),
		nullableString(profile.FilamentID),
		overrides,
		profile.UpdatedAt.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update profile: %w", err)
	}
	return profile, nil
}

// DeleteProfile removes a profile. Returns false when no row matched.
func (s *Store) DeleteProfile(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete profile rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) profileNameExists(ctx context.Context, name, excludeID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM profiles WHERE name = ? AND id != ?`,
		name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check profile name: %w", err)
	}
	return count > 0, nil
}

func scanProfile(scanner interface{ Scan(dest ...any) error }) (*Profile, error) {
	var (
		profile     Profile
		description sql.NullString
		vendor      sql.NullString
		machineID   sql.NullString
		processID   sql.NullString
		filamentID  sql.NullString
		overrides   sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&profile.ID,
		&profile.Name,
		&description,
		&profile.Source,
		&vendor,
		&machineID,
		&processID,
		&filamentID,
		&overrides,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	profile.Description = description.String
	profile.Vendor = vendor.String
	profile.MachineID = machineID.String
	profile.ProcessID = processID.String
	profile.FilamentID = filamentID.String

	settings, err := unmarshalMap(overrides)
	if err != nil {
		return nil, err
	}
	profile.SettingsOverrides = settings

	if created, err := parseTimeString(createdRaw); err == nil {
		profile.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		profile.UpdatedAt = updated
	}
	return &profile, nil
}
