package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-maker-go/hedge"
)

const sampleConfig = `
env: dev
logging:
  level: debug
sync:
  intervalSec: 15
  adoptMatching: true
symbols:
  ETHUSDC:
    lowerPrice: 0.85
    upperPrice: 0.95
    levels: 20
    tickSize: 0.000001
    stepSize: 0.1
    baseOrderSize: 50
    includeFees: true
    makerFeePct: 0.0006
    tpMode: next_grid
    slMode: percent
    stopLossPct: 0.01
    dryRun: false
    entryOnTouch: true
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"stdout"}, cfg.Logging.Outputs)
	assert.Equal(t, 15, cfg.Sync.IntervalSec)
	assert.Equal(t, 300, cfg.Sync.BookTTLSec)
	assert.True(t, cfg.Sync.AdoptMatching)
	assert.Equal(t, RateLimitConfig{OrdersPerSec: 10, Burst: 20}, cfg.RateLimit)

	g := cfg.Symbols["ETHUSDC"]
	assert.Equal(t, "arithmetic", g.Spacing)
	assert.Equal(t, "both", g.Direction)
	assert.Equal(t, "maker", g.FeeSide)
	assert.Equal(t, DefaultRebalanceIntervalSec, g.RebalanceIntervalSec)
	assert.Equal(t, "GRID", g.ClientIDPrefix)
	assert.Equal(t, 0.0, g.TakeProfitPct, "next_grid needs no pct")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv("GRID_DRY_RUN", "true")
	t.Setenv("GRID_LOG_LEVEL", "WARN")

	cfg, err := LoadWithEnvOverrides(path)
	require.NoError(t, err)
	assert.True(t, cfg.Symbols["ETHUSDC"].DryRun)
	assert.Equal(t, "warn", cfg.Logging.Level)

	t.Setenv("GRID_DRY_RUN", "maybe")
	_, err = LoadWithEnvOverrides(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func validGrid() GridConfig {
	return GridConfig{
		LowerPrice: 100, UpperPrice: 200, Levels: 10, TickSize: 0.01,
		Spacing: "geometric", Direction: "both", FeeSide: "maker",
		BaseOrderSize: 1, TPMode: "percent", TakeProfitPct: 0.003,
		SLMode: "none", RebalanceIntervalSec: 300, ClientIDPrefix: "GRID",
	}
}

func TestValidateGrid(t *testing.T) {
	require.NoError(t, ValidateGrid(validGrid()))

	cases := map[string]func(*GridConfig){
		"inverted bounds":    func(g *GridConfig) { g.UpperPrice = 50 },
		"too many levels":    func(g *GridConfig) { g.Levels = 101 },
		"one level":          func(g *GridConfig) { g.Levels = 1 },
		"zero tick":          func(g *GridConfig) { g.TickSize = 0 },
		"range too small":    func(g *GridConfig) { g.TickSize = 20 },
		"zero size":          func(g *GridConfig) { g.BaseOrderSize = 0 },
		"bad spacing":        func(g *GridConfig) { g.Spacing = "fib" },
		"bad direction":      func(g *GridConfig) { g.Direction = "up" },
		"bad fee side":       func(g *GridConfig) { g.FeeSide = "both" },
		"huge fee":           func(g *GridConfig) { g.MakerFeePct = 0.6 },
		"tp pct too high":    func(g *GridConfig) { g.TakeProfitPct = 0.2 },
		"bad tp mode":        func(g *GridConfig) { g.TPMode = "trailing" },
		"sl pct missing":     func(g *GridConfig) { g.SLMode = "percent" },
		"fixed sl missing":   func(g *GridConfig) { g.SLMode = "fixed" },
		"rebalance too fast": func(g *GridConfig) { g.RebalanceIntervalSec = 10 },
		"rebalance too slow": func(g *GridConfig) { g.RebalanceIntervalSec = 7200 },
		"long sl in range": func(g *GridConfig) {
			g.Direction, g.SLMode, g.StopLossPrice = "long", "fixed", 150
		},
		"short sl in range": func(g *GridConfig) {
			g.Direction, g.SLMode, g.StopLossPrice = "short", "fixed", 150
		},
		"long prefix":   func(g *GridConfig) { g.ClientIDPrefix = "THIS-PREFIX-IS-TOO-LONG" },
		"hedge on both": func(g *GridConfig) { g.Hedge.Enabled = true },
		"hedge bad mode": func(g *GridConfig) {
			g.Direction, g.Hedge.Enabled, g.Hedge.Mode = "long", true, "martingale"
		},
		"hedge offset": func(g *GridConfig) {
			g.Direction, g.Hedge.Enabled, g.Hedge.TriggerOffset = "long", true, 20
		},
	}
	for name, mutate := range cases {
		g := validGrid()
		mutate(&g)
		err := ValidateGrid(g)
		var inv ErrInvalid
		assert.True(t, errors.As(err, &inv), "%s: got %v", name, err)
	}

	g := validGrid()
	g.Direction, g.SLMode, g.StopLossPrice = "long", "fixed", 90
	assert.NoError(t, ValidateGrid(g))
}

func TestHedgeConfigParse(t *testing.T) {
	off := false
	h, err := HedgeConfig{
		Enabled: true, Mode: "dynamic", PartialLevels: []float64{0.25, 1}, CloseOnReentry: &off,
	}.Parse()
	require.NoError(t, err)
	assert.Equal(t, hedge.ModeDynamic, h.Mode)
	assert.Equal(t, []float64{0.25, 1}, h.PartialLevels)
	assert.False(t, h.CloseOnReentry)
	assert.Equal(t, 1.0, h.TriggerOffset)
	assert.Equal(t, 0.05, h.PriceProtectScope)

	def, err := HedgeConfig{}.Parse()
	require.NoError(t, err)
	assert.True(t, def.CloseOnReentry)
	assert.False(t, def.Enabled)

	_, err = HedgeConfig{Enabled: true, SizeMode: "fixed", FixedSizeRatio: 3}.Parse()
	assert.Error(t, err)
}

func TestValidateApp(t *testing.T) {
	assert.Error(t, Validate(AppConfig{}))

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	g := cfg.Symbols["ETHUSDC"]
	g.Levels = 0
	cfg.Symbols["ETHUSDC"] = g
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol ETHUSDC")

	cfg, err = Parse([]byte(sampleConfig))
	require.NoError(t, err)
	cfg.RateLimit.Burst = -1
	assert.Error(t, Validate(cfg))
}
