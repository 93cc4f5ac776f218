package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailfield/core"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
	require.NoError(t, s.Validate())
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, `{
		"window": {"width": 640, "height": 480},
		"profile": "ember",
		"parameters": {"swirlStrength": 0.05, "effectRadius": 0.2},
		"deposits": {"maxActive": 4}
	}`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 640, s.Window.Width)
	assert.Equal(t, "Trail Field", s.Window.Title, "unset fields keep defaults")
	assert.Equal(t, 4, s.Deposits.MaxActive)
	assert.Equal(t, 0.25, s.Deposits.SpawnPeriod)

	p, err := s.ShaderParameters()
	require.NoError(t, err)
	assert.Equal(t, 0.05, p.SwirlStrength)
	assert.Equal(t, 0.2, p.EffectRadius)
	ember, _ := core.LookupProfile(core.ProfileEmber)
	assert.Equal(t, ember, p.Lighting)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"accumulation at one", `{"parameters": {"accumulationStrength": 1.0}}`},
		{"unknown parameter", `{"parameters": {"glow": 1}}`},
		{"unknown profile", `{"profile": "neon"}`},
		{"empty profile", `{"profile": ""}`},
		{"custom is not a preset", `{"profile": "custom"}`},
		{"too many deposits", `{"deposits": {"maxActive": 64}}`},
		{"empty window", `{"window": {"width": 0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.json")
			writeFile(t, path, tt.body)
			_, err := Load(path)
			assert.ErrorIs(t, err, core.ErrConfiguration)
		})
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, `{"window": `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := Default()
	s.Params[core.ParamWrap] = 0.25
	require.NoError(t, Save(path, s))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestApplyToKeepsGoodValues(t *testing.T) {
	store, err := core.NewParameterStore(core.DefaultParameters())
	require.NoError(t, err)

	s := Settings{Profile: string(core.ProfileStudio), Params: map[string]float64{
		core.ParamSwirlStrength:        0.07,
		core.ParamAccumulationStrength: 1.5,
	}}
	err = s.ApplyTo(store)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	v, _ := store.Get(core.ParamSwirlStrength)
	assert.Equal(t, 0.07, v)
	v, _ = store.Get(core.ParamAccumulationStrength)
	assert.Equal(t, 0.98, v)
}

func TestWatchPushesChanges(t *testing.T) {
	WatchDebounce = 20 * time.Millisecond
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	writeFile(t, path, `{"parameters": {"swirlStrength": 0.01}}`)

	initial, err := Load(path)
	require.NoError(t, err)
	store, err := core.NewParameterStore(core.DefaultParameters())
	require.NoError(t, err)
	require.NoError(t, initial.ApplyTo(store))

	q := core.NewConfigQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, initial, q, nil) }()
	defer func() {
		cancel()
		q.Close()
		<-done
	}()

	deadline := time.Now().Add(5 * time.Second)
	var lastWrite time.Time
	for time.Now().Before(deadline) {
		// Rewrite until the watcher has registered and picked it up.
		if time.Since(lastWrite) > 250*time.Millisecond {
			writeFile(t, path, `{"profile": "metallic", "parameters": {"swirlStrength": 0.09}}`)
			lastWrite = time.Now()
		}
		q.Drain(store)
		if v, _ := store.Get(core.ParamSwirlStrength); v == 0.09 {
			assert.Equal(t, core.ProfileMetallic, store.Profile())
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("settings change never reached the store")
}
