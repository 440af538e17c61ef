package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"vidmill/internal/transform"
)

// ErrInvalidPreset marks a rejected preset name.
var ErrInvalidPreset = errors.New("invalid preset")

const maxPresetNameLength = 64

// Preset is a named, validated spec.
type Preset struct {
	Name      string         `json:"name"`
	Spec      transform.Spec `json:"spec"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NormalizePresetName trims and NFC-normalizes name and rejects empty or
// overlong names.
func NormalizePresetName(name string) (string, error) {
	normalized := strings.TrimSpace(norm.NFC.String(name))
	if normalized == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidPreset)
	}
	if len([]rune(normalized)) > maxPresetNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidPreset, maxPresetNameLength)
	}
	if strings.ContainsAny(normalized, "/\\") {
		return "", fmt.Errorf("%w: name may not contain slashes", ErrInvalidPreset)
	}
	return normalized, nil
}

// SavePreset validates spec and stores it under name, replacing any preset
// with the same name while keeping its creation time.
func (s *Store) SavePreset(ctx context.Context, name string, spec transform.Spec) (Preset, error) {
	name, err := NormalizePresetName(name)
	if err != nil {
		return Preset{}, err
	}
	if spec.Version == 0 {
		spec.Version = transform.SchemaVersion
	}
	if err := spec.Validate(); err != nil {
		return Preset{}, err
	}
	encoded, err := json.Marshal(spec)
	if err != nil {
		return Preset{}, fmt.Errorf("encode preset: %w", err)
	}
	ts := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO presets (name, spec_json, created_at, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET spec_json = excluded.spec_json, updated_at = excluded.updated_at`,
		name, string(encoded), ts, ts,
	); err != nil {
		return Preset{}, fmt.Errorf("save preset: %w", err)
	}
	return s.Preset(ctx, name)
}

// Preset loads one preset by name.
func (s *Store) Preset(ctx context.Context, name string) (Preset, error) {
	normalized, err := NormalizePresetName(name)
	if err != nil {
		return Preset{}, err
	}
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT name, spec_json, created_at, updated_at FROM presets WHERE name = ?`, normalized)
	preset, err := scanPreset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Preset{}, fmt.Errorf("preset %q: %w", normalized, ErrNotFound)
	}
	if err != nil {
		return Preset{}, fmt.Errorf("get preset: %w", err)
	}
	return preset, nil
}

// ListPresets returns every preset ordered by name.
func (s *Store) ListPresets(ctx context.Context) ([]Preset, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT name, spec_json, created_at, updated_at FROM presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var presets []Preset
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		presets = append(presets, preset)
	}
	return presets, rows.Err()
}

// DeletePreset removes a preset and reports whether it existed.
func (s *Store) DeletePreset(ctx context.Context, name string) (bool, error) {
	normalized, err := NormalizePresetName(name)
	if err != nil {
		return false, err
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM presets WHERE name = ?`, normalized)
	if err != nil {
		return false, fmt.Errorf("delete preset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanPreset(scanner interface{ Scan(dest ...any) error }) (Preset, error) {
	var (
		p          Preset
		specJSON   string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&p.Name, &specJSON, &createdRaw, &updatedRaw); err != nil {
		return Preset{}, err
	}
	spec, err := transform.Parse([]byte(specJSON))
	if err != nil {
		return Preset{}, fmt.Errorf("decode preset %q: %w", p.Name, err)
	}
	p.Spec = spec
	if t, err := parseTimeString(createdRaw); err == nil {
		p.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}
