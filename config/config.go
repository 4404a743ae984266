// Package config loads the engine configuration and plan definitions from a
// YAML file.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/bitage/bitage/internal/domain"
)

// Defaults applied when the config file omits a value.
const (
	DefaultTickInterval   = time.Minute
	DefaultSnapshotMaxAge = 30 * time.Second
	DefaultFetchTimeout   = 10 * time.Second
	DefaultFetchWorkers   = 4
	DefaultStateDir       = "./state"
	DefaultWALDir         = "./wal"
	DefaultListenAddr     = ":8080"
)

// Config is the engine's runtime configuration.
type Config struct {
	Platform       string
	Providers      []string
	TickInterval   time.Duration
	SnapshotMaxAge time.Duration
	FetchTimeout   time.Duration
	FetchWorkers   int
	StateDir       string
	WALDir         string
	ListenAddr     string
	Plans          []*domain.Plan
}

type configTmp struct {
	Platform       string        `yaml:"platform"`
	Providers      []string      `yaml:"providers,omitempty"`
	TickInterval   time.Duration `yaml:"tick_interval,omitempty"`
	SnapshotMaxAge time.Duration `yaml:"snapshot_max_age,omitempty"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout,omitempty"`
	FetchWorkers   int           `yaml:"fetch_workers,omitempty"`
	StateDir       string        `yaml:"state_dir,omitempty"`
	WALDir         string        `yaml:"wal_dir,omitempty"`
	ListenAddr     string        `yaml:"listen_addr,omitempty"`
	Plans          []planTmp     `yaml:"plans"`
}

type planTmp struct {
	ID              string    `yaml:"id"`
	Name            string    `yaml:"name"`
	Pair            string    `yaml:"pair"`
	Kind            string    `yaml:"kind"`
	CadenceTicks    uint64    `yaml:"cadence_ticks,omitempty"`
	BuyPrice        string    `yaml:"buy_price,omitempty"`
	AllocationQuote string    `yaml:"allocation_quote"`
	Enabled         *bool     `yaml:"enabled,omitempty"`
	Rules           []ruleTmp `yaml:"rules"`
}

type ruleTmp struct {
	ID        string       `yaml:"id"`
	Side      string       `yaml:"side"`
	OneShot   bool         `yaml:"one_shot,omitempty"`
	Enabled   *bool        `yaml:"enabled,omitempty"`
	Condition conditionTmp `yaml:"condition"`
	Quantity  quantityTmp  `yaml:"quantity"`
}

type conditionTmp struct {
	Kind         string `yaml:"kind"`
	Threshold    string `yaml:"threshold,omitempty"`
	UpperPct     string `yaml:"upper_pct,omitempty"`
	LowerPct     string `yaml:"lower_pct,omitempty"`
	Multiplier   string `yaml:"multiplier,omitempty"`
	CadenceTicks uint64 `yaml:"cadence_ticks,omitempty"`
}

type quantityTmp struct {
	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`
}

// Get parses the --config flag and loads the configuration.
func Get() (*Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()
	return Load(*path)
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		Platform:       tmp.Platform,
		Providers:      tmp.Providers,
		TickInterval:   tmp.TickInterval,
		SnapshotMaxAge: tmp.SnapshotMaxAge,
		FetchTimeout:   tmp.FetchTimeout,
		FetchWorkers:   tmp.FetchWorkers,
		StateDir:       tmp.StateDir,
		WALDir:         tmp.WALDir,
		ListenAddr:     tmp.ListenAddr,
	}
	applyDefaults(cfg)

	if len(tmp.Plans) == 0 {
		return nil, fmt.Errorf("config has no plans")
	}

	for _, p := range tmp.Plans {
		plan, err := buildPlan(p)
		if err != nil {
			return nil, err
		}
		cfg.Plans = append(cfg.Plans, plan)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Platform == "" {
		cfg.Platform = "simulate"
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.SnapshotMaxAge <= 0 {
		cfg.SnapshotMaxAge = DefaultSnapshotMaxAge
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = DefaultFetchWorkers
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.WALDir == "" {
		cfg.WALDir = DefaultWALDir
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
}

func buildPlan(p planTmp) (*domain.Plan, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("plan without id")
	}

	pair, err := domain.ParsePair(p.Pair)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", p.ID, err)
	}

	kind := domain.StrategyKind(p.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("plan %s: unknown strategy kind %q", p.ID, p.Kind)
	}

	buyPrice, err := parseDecimal(p.BuyPrice, "buy_price", p.ID)
	if err != nil {
		return nil, err
	}
	alloc, err := parseDecimal(p.AllocationQuote, "allocation_quote", p.ID)
	if err != nil {
		return nil, err
	}
	if alloc.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("plan %s: allocation_quote must be positive", p.ID)
	}

	plan := &domain.Plan{
		ID:              p.ID,
		Name:            p.Name,
		Pair:            pair,
		Kind:            kind,
		CadenceTicks:    p.CadenceTicks,
		BuyPrice:        buyPrice,
		AllocationQuote: alloc,
		CreatedAt:       time.Now(),
		Enabled:         p.Enabled == nil || *p.Enabled,
	}

	for i, r := range p.Rules {
		rule, err := buildRule(r, plan.ID, i)
		if err != nil {
			return nil, err
		}
		plan.Rules = append(plan.Rules, rule)
	}
	if len(plan.Rules) == 0 {
		return nil, fmt.Errorf("plan %s has no rules", p.ID)
	}

	return plan, nil
}

func buildRule(r ruleTmp, planID string, seq int) (domain.Rule, error) {
	if r.ID == "" {
		return domain.Rule{}, fmt.Errorf("plan %s: rule %d has no id", planID, seq)
	}

	threshold, err := parseDecimal(r.Condition.Threshold, "condition.threshold", r.ID)
	if err != nil {
		return domain.Rule{}, err
	}
	upper, err := parseDecimal(r.Condition.UpperPct, "condition.upper_pct", r.ID)
	if err != nil {
		return domain.Rule{}, err
	}
	lower, err := parseDecimal(r.Condition.LowerPct, "condition.lower_pct", r.ID)
	if err != nil {
		return domain.Rule{}, err
	}
	multiplier, err := parseDecimal(r.Condition.Multiplier, "condition.multiplier", r.ID)
	if err != nil {
		return domain.Rule{}, err
	}
	value, err := parseDecimal(r.Quantity.Value, "quantity.value", r.ID)
	if err != nil {
		return domain.Rule{}, err
	}

	rule := domain.Rule{
		ID:     r.ID,
		PlanID: planID,
		Seq:    seq,
		Side:   domain.Side(r.Side),
		Condition: domain.Condition{
			Kind:         domain.ConditionKind(r.Condition.Kind),
			Threshold:    threshold,
			UpperPct:     upper,
			LowerPct:     lower,
			Multiplier:   multiplier,
			CadenceTicks: r.Condition.CadenceTicks,
		},
		Quantity: domain.QuantitySpec{
			Kind:  domain.QuantityKind(r.Quantity.Kind),
			Value: value,
		},
		OneShot: r.OneShot,
		Enabled: r.Enabled == nil || *r.Enabled,
	}

	if err := rule.Validate(); err != nil {
		return domain.Rule{}, fmt.Errorf("plan %s: %w", planID, err)
	}
	return rule, nil
}

func parseDecimal(s, field, owner string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: incorrect %q (must be a decimal): %w", owner, field, err)
	}
	return d, nil
}
