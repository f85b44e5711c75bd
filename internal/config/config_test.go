package config_test

import (
	"testing"
	"time"

	"github.com/lastword-games/roundd/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		datadir := t.TempDir()
		t.Setenv("ROUNDD_DATADIR", datadir)

		cfg, err := config.LoadConfig()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.Equal(t, datadir, cfg.Datadir)
		require.Equal(t, uint32(config.DefaultPort), cfg.Port)
		require.Equal(t, "sqlite", cfg.DbType)
		require.Equal(t, "inmemory", cfg.LedgerType)
		require.Equal(t, "log", cfg.NotifierType)
		require.Equal(t, "rounds", cfg.NotifierTopic)
		require.Equal(t, "gocron", cfg.SchedulerType)
		require.Equal(t, time.Second, cfg.TickInterval)
		require.Equal(t, uint32(1000), cfg.PlatformCutBps)
		require.Greater(t, cfg.SettlementLease, cfg.CreditRetryHorizon+cfg.LedgerTimeout)
		require.Len(t, cfg.Distribution, 3)

		shares, ok := cfg.Distribution.Get(3)
		require.True(t, ok)
		require.Equal(t, []uint32{5000, 3000, 2000}, shares)
	})

	t.Run("overrides", func(t *testing.T) {
		viper.Reset()
		t.Setenv("ROUNDD_DATADIR", t.TempDir())
		t.Setenv("ROUNDD_PORT", "9090")
		t.Setenv("ROUNDD_DB_TYPE", "badger")
		t.Setenv("ROUNDD_TICK_INTERVAL", "250ms")
		t.Setenv("ROUNDD_PLATFORM_CUT_BPS", "500")
		t.Setenv("ROUNDD_DISTRIBUTION_TABLE", "1:10000;2:7000,3000")
		t.Setenv("ROUNDD_CREDIT_RETRY_HORIZON", "2m")

		cfg, err := config.LoadConfig()
		require.NoError(t, err)

		require.Equal(t, uint32(9090), cfg.Port)
		require.Equal(t, "badger", cfg.DbType)
		require.Equal(t, 250*time.Millisecond, cfg.TickInterval)
		require.Equal(t, uint32(500), cfg.PlatformCutBps)
		require.Equal(t, 2*time.Minute, cfg.CreditRetryHorizon)
		require.Len(t, cfg.Distribution, 2)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name string
			env  map[string]string
		}{
			{
				name: "malformed distribution table",
				env:  map[string]string{"ROUNDD_DISTRIBUTION_TABLE": "1=10000"},
			},
			{
				name: "shares not summing to the unit",
				env:  map[string]string{"ROUNDD_DISTRIBUTION_TABLE": "2:5000,4000"},
			},
			{
				name: "negative winner count",
				env:  map[string]string{"ROUNDD_DISTRIBUTION_TABLE": "-1:10000"},
			},
			{
				name: "remote db without url",
				env:  map[string]string{"ROUNDD_DB_TYPE": "postgres"},
			},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				viper.Reset()
				t.Setenv("ROUNDD_DATADIR", t.TempDir())
				for k, v := range f.env {
					t.Setenv(k, v)
				}

				cfg, err := config.LoadConfig()
				require.Error(t, err)
				require.Nil(t, cfg)
			})
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		viper.Reset()
		t.Setenv("ROUNDD_DATADIR", t.TempDir())
		t.Setenv("ROUNDD_DB_TYPE", "inmemory")
		t.Setenv("ROUNDD_SCHEDULER_TYPE", "none")

		cfg, err := config.LoadConfig()
		require.NoError(t, err)

		err = cfg.Validate()
		require.NoError(t, err)

		svc, err := cfg.AppService()
		require.NoError(t, err)
		require.NotNil(t, svc)
	})

	t.Run("sqlite", func(t *testing.T) {
		viper.Reset()
		t.Setenv("ROUNDD_DATADIR", t.TempDir())

		cfg, err := config.LoadConfig()
		require.NoError(t, err)

		err = cfg.Validate()
		require.NoError(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"db type", func(c *config.Config) { c.DbType = "leveldb" }},
			{"ledger type", func(c *config.Config) { c.LedgerType = "bank" }},
			{"notifier type", func(c *config.Config) { c.NotifierType = "kafka" }},
			{"scheduler type", func(c *config.Config) { c.SchedulerType = "cron" }},
			{"tick interval", func(c *config.Config) { c.TickInterval = 0 }},
			{"tick concurrency", func(c *config.Config) { c.TickConcurrency = 0 }},
			{"platform cut", func(c *config.Config) { c.PlatformCutBps = 10000 }},
			{"settlement lease", func(c *config.Config) { c.SettlementLease = 0 }},
			{"backoff range", func(c *config.Config) { c.CreditMaxBackoff = time.Millisecond }},
			{"retry horizon", func(c *config.Config) { c.CreditRetryHorizon = 0 }},
			{"lease shorter than a resolver run", func(c *config.Config) {
				c.SettlementLease = c.CreditRetryHorizon + c.LedgerTimeout
			}},
			{"lease shorter than retry horizon", func(c *config.Config) {
				c.SettlementLease = 30 * time.Second
				c.CreditRetryHorizon = time.Minute
			}},
			{"keep-alive retries", func(c *config.Config) { c.KeepAliveMaxRetries = 0 }},
			{"http ledger without url", func(c *config.Config) { c.LedgerType = "http" }},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				viper.Reset()
				t.Setenv("ROUNDD_DATADIR", t.TempDir())
				t.Setenv("ROUNDD_DB_TYPE", "inmemory")

				cfg, err := config.LoadConfig()
				require.NoError(t, err)

				f.mutate(cfg)
				err = cfg.Validate()
				require.Error(t, err)
			})
		}
	})
}

func TestConfigStringHidesSecret(t *testing.T) {
	cfg := &config.Config{AdminJwtSecret: "hunter2"}
	require.NotContains(t, cfg.String(), "hunter2")
}
