package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bitage/bitage/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
platform: simulate
providers: [binance, bybit]
tick_interval: 30s
snapshot_max_age: 10s
fetch_workers: 8
state_dir: /tmp/state
wal_dir: /tmp/wal
listen_addr: ":9090"
plans:
  - id: btc-dip
    name: BTC dip buyer
    pair: BTC_USDT
    kind: dinamic_dca
    allocation_quote: "1000"
    rules:
      - id: r1
        side: buy
        condition:
          kind: drop_from_ath
          threshold: "0.2"
        quantity:
          kind: quote_amount
          value: "50"
      - id: r2
        side: sell
        one_shot: true
        condition:
          kind: absolute_price
          threshold: "100000"
        quantity:
          kind: position_fraction
          value: "1"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "simulate", cfg.Platform)
	require.Equal(t, []string{"binance", "bybit"}, cfg.Providers)
	require.Equal(t, 30*time.Second, cfg.TickInterval)
	require.Equal(t, 10*time.Second, cfg.SnapshotMaxAge)
	require.Equal(t, 8, cfg.FetchWorkers)
	require.Equal(t, ":9090", cfg.ListenAddr)

	require.Len(t, cfg.Plans, 1)
	plan := cfg.Plans[0]
	require.Equal(t, domain.Pair{From: "BTC", To: "USDT"}, plan.Pair)
	require.Equal(t, domain.StrategyDinamicDCA, plan.Kind)
	require.True(t, plan.AllocationQuote.Equal(decimal.NewFromInt(1000)))
	require.True(t, plan.Enabled)

	require.Len(t, plan.Rules, 2)
	require.Equal(t, 0, plan.Rules[0].Seq)
	require.Equal(t, 1, plan.Rules[1].Seq)
	require.Equal(t, "btc-dip", plan.Rules[0].PlanID)
	require.True(t, plan.Rules[1].OneShot)
	require.True(t, plan.Rules[0].Condition.Threshold.Equal(decimal.RequireFromString("0.2")))
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
plans:
  - id: p
    pair: ETH_USDT
    kind: dca_fixed_usd
    allocation_quote: "500"
    rules:
      - id: r1
        side: buy
        condition: {kind: cadence, cadence_ticks: 24}
        quantity: {kind: quote_amount, value: "10"}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "simulate", cfg.Platform)
	require.Equal(t, DefaultTickInterval, cfg.TickInterval)
	require.Equal(t, DefaultSnapshotMaxAge, cfg.SnapshotMaxAge)
	require.Equal(t, DefaultFetchWorkers, cfg.FetchWorkers)
	require.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	require.Equal(t, uint64(24), cfg.Plans[0].Rules[0].Condition.CadenceTicks)
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := map[string]string{
		"no plans": `platform: simulate`,
		"bad pair": `
plans:
  - id: p
    pair: BTCUSDT
    kind: dca_fixed_usd
    allocation_quote: "1"
    rules:
      - {id: r, side: buy, condition: {kind: cadence}, quantity: {kind: quote_amount, value: "1"}}
`,
		"unknown kind": `
plans:
  - id: p
    pair: BTC_USDT
    kind: martingale
    allocation_quote: "1"
    rules:
      - {id: r, side: buy, condition: {kind: cadence}, quantity: {kind: quote_amount, value: "1"}}
`,
		"zero allocation": `
plans:
  - id: p
    pair: BTC_USDT
    kind: dca_fixed_usd
    allocation_quote: "0"
    rules:
      - {id: r, side: buy, condition: {kind: cadence}, quantity: {kind: quote_amount, value: "1"}}
`,
		"invalid rule side": `
plans:
  - id: p
    pair: BTC_USDT
    kind: dca_fixed_usd
    allocation_quote: "1"
    rules:
      - {id: r, side: short, condition: {kind: cadence}, quantity: {kind: quote_amount, value: "1"}}
`,
		"no rules": `
plans:
  - id: p
    pair: BTC_USDT
    kind: dca_fixed_usd
    allocation_quote: "1"
    rules: []
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
