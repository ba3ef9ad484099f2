package config

// Settings is the user-settings document: general/export/vat/domain
// defaults.
type Settings struct {
	General SettingsGeneral `json:"general"`
	Export  SettingsExport  `json:"export"`
	VAT     SettingsVAT     `json:"vat"`
}

type SettingsGeneral struct {
	Theme    string `json:"theme"`
	Language string `json:"language"`
}

type SettingsExport struct {
	DefaultFormat string `json:"defaultFormat"`
	OutputDir     string `json:"outputDir"`
}

type SettingsVAT struct {
	DefaultRate float64 `json:"defaultRate"`
	Country     string  `json:"country"`
}

func defaultSettings() Settings {
	return Settings{
		General: SettingsGeneral{Theme: "system", Language: "en"},
		Export:  SettingsExport{DefaultFormat: "pdf", OutputDir: "exports"},
		VAT:     SettingsVAT{DefaultRate: 0.2, Country: "FR"},
	}
}

// Modules is the modules document: one section per worker, declaring
// enablement, invocation path, and optional concurrency/port overrides.
type Modules struct {
	Workers map[string]WorkerConfig `json:"workers"`
}

type WorkerConfig struct {
	Enabled        bool   `json:"enabled"`
	Path           string `json:"path"`
	MaxConcurrent  *int   `json:"maxConcurrent,omitempty"`
	Port           *int   `json:"port,omitempty"`
}

func defaultModules() Modules {
	return Modules{Workers: map[string]WorkerConfig{
		"python":  {Enabled: true, Path: "workers/python/main.py"},
		"network": {Enabled: true, Path: "workers/network/main.py"},
		"native":  {Enabled: false, Path: "workers/native/kernel-native-worker"},
	}}
}
