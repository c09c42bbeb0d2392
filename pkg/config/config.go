// Package config builds the process configuration once at startup. The
// engine never reads the environment itself; everything it needs is carried
// in a Config constructed here and passed down by parameter.
package config

import (
	"fmt"
	"time"

	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/utils"
)

type Config struct {
	// StorageDir is the root of the filesystem-backed object store. The
	// production bucket is mounted or synced here; the key layout under it
	// matches the bucket layout exactly.
	StorageDir string

	// RecordsPrefix and BalancesPrefix are the key prefixes of the daily
	// transaction caches and the balance snapshots.
	RecordsPrefix  string
	BalancesPrefix string

	// SubgraphURL is the transfer-event source endpoint.
	SubgraphURL string

	// EarliestDay bounds start-day discovery: no snapshot can exist before
	// the first tracked token existed.
	EarliestDay date.Day

	// CutoffDay optionally caps the run; zero means run to the current day.
	CutoffDay date.Day

	// Budget and SafetyMargin control cooperative termination. A zero
	// Budget disables the wall-clock bound entirely.
	Budget       time.Duration
	SafetyMargin time.Duration

	// MirrorCSV also writes a balances.csv artifact next to each snapshot.
	MirrorCSV bool

	// CronSpec schedules runs in the service binary.
	CronSpec string

	// Addr is the HTTP listen address.
	Addr string

	// RedisAddr enables the hint channel when nonempty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	HintStream    string
	HintGroup     string
	HintConsumer  string

	// ClickHouseAddr enables the warehouse mirror when nonempty.
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string
}

// FromEnv reads the configuration from the environment.
func FromEnv() (Config, error) {
	cfg := Config{
		StorageDir:     utils.Env("STORAGE_DIR", "./data"),
		RecordsPrefix:  utils.Env("RECORDS_PREFIX", "token-holder-transactions"),
		BalancesPrefix: utils.Env("BALANCES_PREFIX", "token-holder-balances"),
		SubgraphURL:    utils.Env("SUBGRAPH_URL", ""),

		Budget:       time.Duration(utils.EnvInt("RUN_BUDGET_SECONDS", 540)) * time.Second,
		SafetyMargin: time.Duration(utils.EnvInt("RUN_SAFETY_MARGIN_SECONDS", 60)) * time.Second,

		MirrorCSV: utils.EnvBool("MIRROR_CSV", false),
		CronSpec:  utils.Env("CRON_SPEC", "10 * * * *"),
		Addr:      utils.Env("ADDR", ":3000"),

		RedisAddr:     utils.Env("REDIS_ADDR", ""),
		RedisPassword: utils.Env("REDIS_PASSWORD", ""),
		RedisDB:       utils.EnvInt("REDIS_DB", 0),
		HintStream:    utils.Env("HINT_STREAM", "token-balances:hints"),
		HintGroup:     utils.Env("HINT_GROUP", "token-balances"),
		HintConsumer:  utils.Env("HINT_CONSUMER", "token-balances-1"),

		ClickHouseAddr:     utils.Env("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: utils.Env("CLICKHOUSE_DB", "analytics"),
		ClickHouseUsername: utils.Env("CLICKHOUSE_USER", "default"),
		ClickHousePassword: utils.Env("CLICKHOUSE_PASSWORD", ""),
	}

	earliest, err := date.Parse(utils.Env("EARLIEST_DATE", "2021-01-01"))
	if err != nil {
		return Config{}, fmt.Errorf("EARLIEST_DATE: %w", err)
	}
	cfg.EarliestDay = earliest

	if cutoff := utils.Env("CUTOFF_DATE", ""); cutoff != "" {
		day, err := date.Parse(cutoff)
		if err != nil {
			return Config{}, fmt.Errorf("CUTOFF_DATE: %w", err)
		}
		cfg.CutoffDay = day
	}

	if cfg.Budget > 0 && cfg.SafetyMargin >= cfg.Budget {
		return Config{}, fmt.Errorf("safety margin %s must be below budget %s", cfg.SafetyMargin, cfg.Budget)
	}
	return cfg, nil
}
