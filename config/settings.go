// Package config loads settings.json over built-in defaults and hot-reloads
// the visual parameters while the renderer runs.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"trailfield/core"
	"trailfield/trail"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPath is where the renderer looks for its settings file.
const DefaultPath = "settings.json"

type Settings struct {
	Window    WindowSettings     `json:"window"`
	Profile   string             `json:"profile"`
	Params    map[string]float64 `json:"parameters"`
	Deposits  DepositSettings    `json:"deposits"`
	NormalMap NormalMapSettings  `json:"normalMap"`
	Server    ServerSettings     `json:"server"`
	Log       LogSettings        `json:"log"`
}

type WindowSettings struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Title  string `json:"title"`
	VSync  bool   `json:"vsync"`
}

type DepositSettings struct {
	SpawnPeriod   float64 `json:"spawnPeriod"`
	MaxActive     int     `json:"maxActive"`
	Speed         float64 `json:"speed"`
	LifeDecrement float64 `json:"lifeDecrement"`
	Seed          int64   `json:"seed"`
}

// NormalMapSettings picks the surface normal source: "flat", "perlin", or
// a path to an image file.
type NormalMapSettings struct {
	Source   string  `json:"source"`
	Size     int     `json:"size"`
	Scale    float64 `json:"scale"`
	Strength float64 `json:"strength"`
}

type ServerSettings struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type LogSettings struct {
	Environment string `json:"environment"`
	Level       string `json:"level"`
}

// Default returns the settings used when no file is present.
func Default() Settings {
	d := core.DefaultDepositConfig()
	return Settings{
		Window: WindowSettings{
			Width:  1280,
			Height: 720,
			Title:  "Trail Field",
			VSync:  true,
		},
		Profile: string(core.ProfileStudio),
		Params:  map[string]float64{},
		Deposits: DepositSettings{
			SpawnPeriod:   d.SpawnPeriod,
			MaxActive:     d.MaxActive,
			Speed:         d.Speed,
			LifeDecrement: d.LifeDecrement,
			Seed:          d.Seed,
		},
		NormalMap: NormalMapSettings{
			Source:   "perlin",
			Size:     256,
			Scale:    4,
			Strength: 2,
		},
		Server: ServerSettings{
			Enabled: true,
			Addr:    "127.0.0.1:8080",
		},
		Log: LogSettings{
			Environment: "development",
			Level:       "info",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("error parsing %s: %w", path, err)
	}
	if s.Params == nil {
		s.Params = map[string]float64{}
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks every value the renderer will use.
func (s Settings) Validate() error {
	if s.Window.Width <= 0 || s.Window.Height <= 0 {
		return &core.ConfigurationError{Name: "window", Value: float64(s.Window.Width * s.Window.Height), Reason: fmt.Sprintf("%dx%d has no area", s.Window.Width, s.Window.Height)}
	}
	if _, ok := core.LookupProfile(core.Profile(s.Profile)); !ok {
		return &core.ConfigurationError{Name: "profile:" + s.Profile, Value: math.NaN(), Reason: "unknown lighting profile"}
	}
	if _, err := s.ShaderParameters(); err != nil {
		return err
	}
	if err := s.DepositConfig().Validate(trail.MaxStamps - 1); err != nil {
		return err
	}
	switch s.NormalMap.Source {
	case "flat", "perlin":
		if s.NormalMap.Size <= 0 {
			return &core.ConfigurationError{Name: "normalMap.size", Value: float64(s.NormalMap.Size), Reason: "must be positive"}
		}
	case "":
		return &core.ConfigurationError{Name: "normalMap.source", Reason: "must be flat, perlin or an image path"}
	}
	return nil
}

// ApplyTo writes the profile and then every parameter override into store,
// so overrides win over the preset.
// Every value is attempted; the returned error joins the rejections.
func (s Settings) ApplyTo(store *core.ParameterStore) error {
	var errs []error
	if err := store.SetProfile(core.Profile(s.Profile)); err != nil {
		errs = append(errs, err)
	}

	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := store.Set(name, s.Params[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ShaderParameters resolves the defaults, the profile and the overrides.
func (s Settings) ShaderParameters() (core.ShaderParameters, error) {
	store, err := core.NewParameterStore(core.DefaultParameters())
	if err != nil {
		return core.ShaderParameters{}, err
	}
	if err := s.ApplyTo(store); err != nil {
		return core.ShaderParameters{}, err
	}
	return store.Snapshot(), nil
}

// DepositConfig converts the spawner settings.
func (s Settings) DepositConfig() core.DepositConfig {
	return core.DepositConfig{
		SpawnPeriod:   s.Deposits.SpawnPeriod,
		MaxActive:     s.Deposits.MaxActive,
		Speed:         s.Deposits.Speed,
		LifeDecrement: s.Deposits.LifeDecrement,
		Seed:          s.Deposits.Seed,
	}
}

// Save writes s as indented JSON.
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
