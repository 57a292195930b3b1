package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Tier is a paid-tier identifier. The zero-value tier of every user is free.
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// UnlimitedGenerations marks a plan whose quota gate always passes.
const UnlimitedGenerations = -1

// Plan describes the economics of a tier: the exact recurring amount the
// processor must report and the monthly AI-generation credit limit.
type Plan struct {
	Tier             Tier    `mapstructure:"tier"`
	Amount           float64 `mapstructure:"amount"`
	GenerationsLimit int     `mapstructure:"generations_limit"`
}

// PlanTable maps tier name to plan. Values are product configuration,
// not engine logic.
type PlanTable map[Tier]Plan

func DefaultPlanTable() PlanTable {
	return PlanTable{
		TierFree:    {Tier: TierFree, Amount: 0, GenerationsLimit: 200},
		TierPro:     {Tier: TierPro, Amount: 2999, GenerationsLimit: 300},
		TierPremium: {Tier: TierPremium, Amount: 4999, GenerationsLimit: 400},
	}
}

// PlanCatalog holds the current plan table and hot-reloads it when the
// plans.yml config file changes.
type PlanCatalog struct {
	current atomic.Value // holds PlanTable
}

func NewPlanCatalog(log *zap.Logger) (*PlanCatalog, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/wearly/config")
	v.AddConfigPath("/etc/wearly")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WEARLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	catalog := &PlanCatalog{}
	catalog.current.Store(DefaultPlanTable())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return catalog, nil
	}

	table, err := unmarshalPlanTable(v)
	if err != nil {
		return nil, err
	}
	catalog.current.Store(table)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalPlanTable(v)
		if err != nil {
			log.Warn("plan catalog reload ignored", zap.Error(err))
			return
		}
		catalog.current.Store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name))
	})

	return catalog, nil
}

// NewStaticPlanCatalog wraps a fixed table without file watching. Used by
// tests and one-off tooling.
func NewStaticPlanCatalog(table PlanTable) *PlanCatalog {
	catalog := &PlanCatalog{}
	catalog.current.Store(table)
	return catalog
}

// Table returns the current plan table.
func (c *PlanCatalog) Table() PlanTable {
	return c.current.Load().(PlanTable)
}

// Plan returns the plan for a tier.
func (c *PlanCatalog) Plan(tier Tier) (Plan, bool) {
	plan, ok := c.Table()[tier]
	return plan, ok
}

// PaidTier reports whether the tier is a purchasable one. The free tier is
// never a valid target of a checkout reference.
func PaidTier(tier Tier) bool {
	switch tier {
	case TierPro, TierPremium:
		return true
	default:
		return false
	}
}

func ParseTier(raw string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierFree:
		return TierFree, true
	case TierPro:
		return TierPro, true
	case TierPremium:
		return TierPremium, true
	default:
		return "", false
	}
}

func unmarshalPlanTable(v *viper.Viper) (PlanTable, error) {
	var plans []Plan
	if err := v.UnmarshalKey("plans", &plans); err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, errors.New("plans cannot be empty")
	}

	table := DefaultPlanTable()
	for _, plan := range plans {
		tier, ok := ParseTier(string(plan.Tier))
		if !ok {
			return nil, errors.New("unknown tier " + string(plan.Tier))
		}
		if plan.GenerationsLimit < 0 && plan.GenerationsLimit != UnlimitedGenerations {
			return nil, errors.New("invalid generations_limit for " + string(tier))
		}
		plan.Tier = tier
		table[tier] = plan
	}
	return table, nil
}
