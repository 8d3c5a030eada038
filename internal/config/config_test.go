package config

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bedmesh/internal/fsutil"
)

func TestEmptyConfigGetterDefaults(t *testing.T) {
	cfg := EmptyConfig()

	assert.Equal(t, "damped", cfg.GetSmoothMode())
	assert.Equal(t, 1, cfg.GetSmoothIterations())
	assert.Equal(t, 0.6, cfg.GetSmoothLambda())
	assert.Equal(t, 0.3, cfg.GetDomeAmplitude())
	assert.Equal(t, 0.0, cfg.GetDomeCompensation())
	assert.Equal(t, "extended", cfg.GetInterpolationMode())
	assert.Equal(t, 100, cfg.GetResolution())
	assert.Equal(t, 0.0, cfg.GetEdgeOffset())
	assert.Equal(t, "not-a-knot", cfg.GetBoundary())
	assert.Equal(t, 5.0, cfg.GetMoveCheckDistance())
	assert.Equal(t, 0.01, cfg.GetSplitDeltaZ())
}

func TestDefaultConfigMatchesDefaultsFile(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultConfig(), fromFile); diff != "" {
		t.Errorf("%s drifted from getter defaults (-code +file):\n%s", DefaultConfigPath, diff)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "smooth_mode": "full",
  "smooth_iterations": 3,
  "resolution": 50,
  "edge_offset": 0.2
}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.GetSmoothMode())
	assert.Equal(t, 3, cfg.GetSmoothIterations())
	assert.Equal(t, 50, cfg.GetResolution())
	assert.Equal(t, 0.2, cfg.GetEdgeOffset())
	// Omitted keys keep their defaults.
	assert.Equal(t, 0.6, cfg.GetSmoothLambda())
	assert.Nil(t, cfg.SmoothLambda)
}

func TestLoadConfigRejects(t *testing.T) {
	dir := t.TempDir()

	t.Run("non json extension", func(t *testing.T) {
		path := filepath.Join(dir, "printer.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ".json extension")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "nope.json"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("too large", func(t *testing.T) {
		path := filepath.Join(dir, "big.json")
		big := `{"smooth_mode": "full"` + strings.Repeat(" ", 1024*1024) + `}`
		require.NoError(t, os.WriteFile(path, []byte(big), 0o644))
		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"resolution": "many"}`), 0o644))
		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config JSON")
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Parse([]byte(`{"noise_relative": 0.1}`))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"empty ok", Config{}, ""},
		{"defaults ok", *DefaultConfig(), ""},
		{"bad smooth mode", Config{SmoothMode: String("gaussian")}, "smooth_mode"},
		{"negative iterations", Config{SmoothIterations: Int(-1)}, "smooth_iterations"},
		{"lambda above one", Config{SmoothLambda: Float64(1.5)}, "smooth_lambda"},
		{"lambda below zero", Config{SmoothLambda: Float64(-0.1)}, "smooth_lambda"},
		{"compensation above one", Config{DomeCompensation: Float64(1.01)}, "dome_compensation"},
		{"bad interpolation mode", Config{InterpolationMode: String("cubic")}, "interpolation_mode"},
		{"resolution one", Config{Resolution: Int(1)}, "resolution"},
		{"resolution two ok", Config{Resolution: Int(2)}, ""},
		{"negative offset", Config{EdgeOffset: Float64(-0.2)}, "edge_offset"},
		{"bad boundary", Config{Boundary: String("clamped")}, "boundary"},
		{"zero move distance", Config{MoveCheckDistance: Float64(0)}, "move_check_distance"},
		{"negative delta z", Config{SplitDeltaZ: Float64(-0.001)}, "split_delta_z"},
		{"zero delta z ok", Config{SplitDeltaZ: Float64(0)}, ""},
		{"nan lambda", Config{SmoothLambda: Float64(math.NaN())}, "smooth_lambda"},
		{"nan compensation", Config{DomeCompensation: Float64(math.NaN())}, "dome_compensation"},
		{"nan offset", Config{EdgeOffset: Float64(math.NaN())}, "edge_offset"},
		{"infinite offset", Config{EdgeOffset: Float64(math.Inf(1))}, "edge_offset"},
		{"nan move distance", Config{MoveCheckDistance: Float64(math.NaN())}, "move_check_distance"},
		{"infinite move distance", Config{MoveCheckDistance: Float64(math.Inf(1))}, "move_check_distance"},
		{"nan delta z", Config{SplitDeltaZ: Float64(math.NaN())}, "split_delta_z"},
		{"nan amplitude", Config{DomeAmplitude: Float64(math.NaN())}, "dome_amplitude"},
		{"infinite amplitude", Config{DomeAmplitude: Float64(math.Inf(-1))}, "dome_amplitude"},
		{"negative amplitude ok", Config{DomeAmplitude: Float64(-0.3)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	merged := base.Merge(&Config{Resolution: Int(25), Boundary: String(BoundaryNatural)})

	assert.Equal(t, 25, merged.GetResolution())
	assert.Equal(t, BoundaryNatural, merged.GetBoundary())
	assert.Equal(t, 5.0, merged.GetMoveCheckDistance())
	assert.Equal(t, 100, base.GetResolution(), "Merge must not modify the receiver")

	assert.Equal(t, base, base.Merge(nil))
}

func TestJSONResolvesDefaults(t *testing.T) {
	data, err := (&Config{SmoothIterations: Int(4)}).JSON()
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 4.0, got["smooth_iterations"])
	assert.Equal(t, "extended", got["interpolation_mode"])
	assert.Len(t, got, 11)
}

func TestLoadConfigFS(t *testing.T) {
	t.Parallel()

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/etc/bedmesh/printer.json", []byte(`{"dome_compensation": 0.5}`), 0o644))

	cfg, err := LoadConfigFS(mfs, "/etc/bedmesh/printer.json")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.GetDomeCompensation())

	_, err = LoadConfigFS(mfs, "/etc/bedmesh/other.json")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
