package model

// PanelSettings is the process-wide dashboard configuration, persisted as
// rows in the settings table.
type PanelSettings struct {
	PanelName   string `json:"panelName"`
	ThemePreset string `json:"themePreset"`
}
