package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/keygate/keygate/internal/model"
)

// Setting names used by the panel.
const (
	settingPanelName   = "panel.name"
	settingThemePreset = "panel.theme"
	settingCreditCost  = "keys.credit_cost"
)

// Defaults applied when a setting row is absent.
const (
	defaultPanelName   = "Keygate"
	defaultThemePreset = "dark"
	defaultCreditCost  = 1
)

// GetSetting returns a raw setting value, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value,
		s.rebind(`SELECT value FROM settings WHERE name = ?`), name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting %s: %w", name, err)
	}
	return value, nil
}

// SetSetting upserts a setting value.
func (s *Store) SetSetting(ctx context.Context, name, value string) error {
	var q string
	switch s.driver {
	case "mysql":
		q = `INSERT INTO settings (name, value) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE value = VALUES(value)`
	default: // sqlite and postgres share the conflict syntax
		q = `INSERT INTO settings (name, value) VALUES (?, ?)
			ON CONFLICT (name) DO UPDATE SET value = excluded.value`
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(q), name, value); err != nil {
		return fmt.Errorf("set setting %s: %w", name, err)
	}
	return nil
}

// GetPanelSettings returns the dashboard settings, applying defaults for
// anything not yet stored.
func (s *Store) GetPanelSettings(ctx context.Context) (model.PanelSettings, error) {
	settings := model.PanelSettings{
		PanelName:   defaultPanelName,
		ThemePreset: defaultThemePreset,
	}
	if v, err := s.GetSetting(ctx, settingPanelName); err == nil {
		settings.PanelName = v
	} else if !errors.Is(err, ErrNotFound) {
		return settings, err
	}
	if v, err := s.GetSetting(ctx, settingThemePreset); err == nil {
		settings.ThemePreset = v
	} else if !errors.Is(err, ErrNotFound) {
		return settings, err
	}
	return settings, nil
}

// UpdatePanelSettings stores the dashboard settings.
func (s *Store) UpdatePanelSettings(ctx context.Context, settings model.PanelSettings) error {
	if err := s.SetSetting(ctx, settingPanelName, settings.PanelName); err != nil {
		return err
	}
	return s.SetSetting(ctx, settingThemePreset, settings.ThemePreset)
}

// GetCreditCost returns the per-key credit cost charged to resellers.
func (s *Store) GetCreditCost(ctx context.Context) (int64, error) {
	v, err := s.GetSetting(ctx, settingCreditCost)
	if errors.Is(err, ErrNotFound) {
		return defaultCreditCost, nil
	}
	if err != nil {
		return 0, err
	}
	cost, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse credit cost %q: %w", v, err)
	}
	return cost, nil
}

// SetCreditCost stores the per-key credit cost. Cost must be positive.
func (s *Store) SetCreditCost(ctx context.Context, cost int64) error {
	if cost <= 0 {
		return fmt.Errorf("credit cost must be positive, got %d", cost)
	}
	return s.SetSetting(ctx, settingCreditCost, strconv.FormatInt(cost, 10))
}
