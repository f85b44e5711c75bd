package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lastword-games/roundd/internal/core/application"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/core/ports"
	"github.com/lastword-games/roundd/internal/infrastructure/db"
	httpledger "github.com/lastword-games/roundd/internal/infrastructure/ledger/http"
	inmemoryledger "github.com/lastword-games/roundd/internal/infrastructure/ledger/inmemory"
	lognotifier "github.com/lastword-games/roundd/internal/infrastructure/notifier/log"
	natsnotifier "github.com/lastword-games/roundd/internal/infrastructure/notifier/nats"
	redisnotifier "github.com/lastword-games/roundd/internal/infrastructure/notifier/redis"
	watermillnotifier "github.com/lastword-games/roundd/internal/infrastructure/notifier/watermill"
	timescheduler "github.com/lastword-games/roundd/internal/infrastructure/scheduler/gocron"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedDbs = supportedType{
		"inmemory": {},
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
		"redis":    {},
		"mongo":    {},
	}
	supportedLedgers = supportedType{
		"inmemory": {},
		"http":     {},
	}
	supportedNotifiers = supportedType{
		"log":    {},
		"nats":   {},
		"redis":  {},
		"outbox": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
		"none":   {},
	}
	remoteDbs = supportedType{
		"postgres": {},
		"redis":    {},
		"mongo":    {},
	}
)

type Config struct {
	Datadir        string
	Port           uint32
	LogLevel       int
	AdminJwtSecret string

	DbType              string
	DbDir               string
	DbUrl               string
	LedgerType          string
	LedgerUrl           string
	LedgerTimeout       time.Duration
	NotifierType        string
	NotifierUrl         string
	NotifierTopic       string
	SchedulerType       string
	TickInterval        time.Duration
	TickConcurrency     int
	PlatformCutBps      uint32
	Distribution        domain.DistributionTable
	SettlementLease     time.Duration
	CreditMinBackoff    time.Duration
	CreditMaxBackoff    time.Duration
	CreditRetryHorizon  time.Duration
	KeepAliveMaxRetries int

	repo      ports.RepoManager
	ledger    ports.LedgerService
	notifier  ports.Notifier
	scheduler ports.SchedulerService
	clock     clockwork.Clock
	svc       application.Service
}

func (c *Config) String() string {
	clone := *c
	if clone.AdminJwtSecret != "" {
		clone.AdminJwtSecret = "••••••"
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir              = "DATADIR"
	Port                 = "PORT"
	LogLevel             = "LOG_LEVEL"
	DbType               = "DB_TYPE"
	DbUrl                = "DB_URL"
	LedgerType           = "LEDGER_TYPE"
	LedgerUrl            = "LEDGER_URL"
	LedgerTimeout        = "LEDGER_TIMEOUT"
	NotifierType         = "NOTIFIER_TYPE"
	NotifierUrl          = "NOTIFIER_URL"
	NotifierTopic        = "NOTIFIER_TOPIC"
	SchedulerType        = "SCHEDULER_TYPE"
	TickInterval         = "TICK_INTERVAL"
	TickConcurrency      = "TICK_CONCURRENCY"
	PlatformCutBps       = "PLATFORM_CUT_BPS"
	DistributionTable    = "DISTRIBUTION_TABLE"
	SettlementLease      = "SETTLEMENT_LEASE"
	CreditInitialBackoff = "CREDIT_INITIAL_BACKOFF"
	CreditMaxBackoff     = "CREDIT_MAX_BACKOFF"
	CreditRetryHorizon   = "CREDIT_RETRY_HORIZON"
	KeepAliveMaxRetries  = "KEEPALIVE_MAX_RETRIES"
	AdminJwtSecret       = "ADMIN_JWT_SECRET"

	defaultDatadir              = appDataDir()
	DefaultPort                 = 7070
	defaultLogLevel             = 4
	defaultDbType               = "sqlite"
	defaultLedgerType           = "inmemory"
	defaultLedgerTimeout        = 10 * time.Second
	defaultNotifierType         = "log"
	defaultNotifierTopic        = "rounds"
	defaultSchedulerType        = "gocron"
	defaultTickInterval         = time.Second
	defaultTickConcurrency      = 8
	defaultPlatformCutBps       = 1000
	defaultDistributionTable    = "1:10000;2:6000,4000;3:5000,3000,2000"
	defaultSettlementLease      = 90 * time.Second
	defaultCreditInitialBackoff = 200 * time.Millisecond
	defaultCreditMaxBackoff     = 5 * time.Second
	defaultCreditRetryHorizon   = time.Minute
	defaultKeepAliveMaxRetries  = 16
)

func LoadConfig() (*Config, error) {
	// variables already in the environment take precedence over the .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %s", err)
	}

	viper.SetEnvPrefix("ROUNDD")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(LedgerType, defaultLedgerType)
	viper.SetDefault(LedgerTimeout, defaultLedgerTimeout)
	viper.SetDefault(NotifierType, defaultNotifierType)
	viper.SetDefault(NotifierTopic, defaultNotifierTopic)
	viper.SetDefault(SchedulerType, defaultSchedulerType)
	viper.SetDefault(TickInterval, defaultTickInterval)
	viper.SetDefault(TickConcurrency, defaultTickConcurrency)
	viper.SetDefault(PlatformCutBps, defaultPlatformCutBps)
	viper.SetDefault(DistributionTable, defaultDistributionTable)
	viper.SetDefault(SettlementLease, defaultSettlementLease)
	viper.SetDefault(CreditInitialBackoff, defaultCreditInitialBackoff)
	viper.SetDefault(CreditMaxBackoff, defaultCreditMaxBackoff)
	viper.SetDefault(CreditRetryHorizon, defaultCreditRetryHorizon)
	viper.SetDefault(KeepAliveMaxRetries, defaultKeepAliveMaxRetries)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	distribution, err := domain.ParseDistributionTable(viper.GetString(DistributionTable))
	if err != nil {
		return nil, err
	}

	dbUrl := viper.GetString(DbUrl)
	if remoteDbs.supports(viper.GetString(DbType)) && dbUrl == "" {
		return nil, fmt.Errorf("DB_URL not provided")
	}

	return &Config{
		Datadir:             viper.GetString(Datadir),
		Port:                viper.GetUint32(Port),
		LogLevel:            viper.GetInt(LogLevel),
		AdminJwtSecret:      viper.GetString(AdminJwtSecret),
		DbType:              viper.GetString(DbType),
		DbDir:               filepath.Join(viper.GetString(Datadir), "db"),
		DbUrl:               dbUrl,
		LedgerType:          viper.GetString(LedgerType),
		LedgerUrl:           viper.GetString(LedgerUrl),
		LedgerTimeout:       viper.GetDuration(LedgerTimeout),
		NotifierType:        viper.GetString(NotifierType),
		NotifierUrl:         viper.GetString(NotifierUrl),
		NotifierTopic:       viper.GetString(NotifierTopic),
		SchedulerType:       viper.GetString(SchedulerType),
		TickInterval:        viper.GetDuration(TickInterval),
		TickConcurrency:     viper.GetInt(TickConcurrency),
		PlatformCutBps:      viper.GetUint32(PlatformCutBps),
		Distribution:        distribution,
		SettlementLease:     viper.GetDuration(SettlementLease),
		CreditMinBackoff:    viper.GetDuration(CreditInitialBackoff),
		CreditMaxBackoff:    viper.GetDuration(CreditMaxBackoff),
		CreditRetryHorizon:  viper.GetDuration(CreditRetryHorizon),
		KeepAliveMaxRetries: viper.GetInt(KeepAliveMaxRetries),
	}, nil
}

func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedLedgers.supports(c.LedgerType) {
		return fmt.Errorf("ledger type not supported, please select one of: %s", supportedLedgers)
	}
	if !supportedNotifiers.supports(c.NotifierType) {
		return fmt.Errorf(
			"notifier type not supported, please select one of: %s", supportedNotifiers,
		)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf(
			"scheduler type not supported, please select one of: %s", supportedSchedulers,
		)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("invalid tick interval, must be positive")
	}
	if c.TickConcurrency < 1 {
		return fmt.Errorf("invalid tick concurrency, must be at least 1")
	}
	if c.PlatformCutBps >= domain.BasisPoints {
		return fmt.Errorf("invalid platform cut, must be lower than %d", domain.BasisPoints)
	}
	if err := c.Distribution.Validate(); err != nil {
		return err
	}
	if c.SettlementLease <= 0 {
		return fmt.Errorf("invalid settlement lease, must be positive")
	}
	if c.CreditMinBackoff <= 0 || c.CreditMaxBackoff < c.CreditMinBackoff {
		return fmt.Errorf("invalid credit backoff range")
	}
	if c.CreditRetryHorizon <= 0 {
		return fmt.Errorf("invalid credit retry horizon, must be positive")
	}
	if c.SettlementLease <= c.CreditRetryHorizon+c.LedgerTimeout {
		return fmt.Errorf(
			"invalid settlement lease, must be longer than credit retry horizon plus ledger timeout (%s)",
			c.CreditRetryHorizon+c.LedgerTimeout,
		)
	}
	if c.KeepAliveMaxRetries < 1 {
		return fmt.Errorf("invalid keep-alive max retries, must be at least 1")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.ledgerService(); err != nil {
		return err
	}
	if err := c.notifierService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	c.clock = clockwork.NewRealClock()
	return c.appService()
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.DbType {
	case "inmemory":
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres", "redis", "mongo":
		dataStoreConfig = []interface{}{c.DbUrl}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) ledgerService() error {
	var svc ports.LedgerService
	var err error

	switch c.LedgerType {
	case "inmemory":
		log.Warn("using an in-memory ledger, credits are lost on restart")
		svc = inmemoryledger.NewLedgerService()
	case "http":
		svc, err = httpledger.NewLedgerService(c.LedgerUrl, c.LedgerTimeout)
	default:
		err = fmt.Errorf("unknown ledger type")
	}
	if err != nil {
		return err
	}

	c.ledger = svc
	return nil
}

func (c *Config) notifierService() error {
	var svc ports.Notifier
	var err error

	switch c.NotifierType {
	case "log":
		svc = lognotifier.NewNotifier(nil)
	case "nats":
		svc, err = natsnotifier.NewNotifier(c.NotifierUrl, c.NotifierTopic, nil)
	case "redis":
		svc, err = redisnotifier.NewNotifier(c.NotifierUrl, c.NotifierTopic, nil)
	case "outbox":
		svc, err = watermillnotifier.NewOutboxNotifier(c.NotifierUrl, c.NotifierTopic, nil)
	default:
		err = fmt.Errorf("unknown notifier type")
	}
	if err != nil {
		return err
	}

	c.notifier = svc
	return nil
}

func (c *Config) schedulerService() error {
	switch c.SchedulerType {
	case "gocron":
		c.scheduler = timescheduler.NewScheduler()
	case "none":
		c.scheduler = nil
	default:
		return fmt.Errorf("unknown scheduler type")
	}
	return nil
}

func (c *Config) appService() error {
	svc, err := application.NewService(
		application.Config{
			PlatformCutBps:       c.PlatformCutBps,
			Distribution:         c.Distribution,
			SettlementLease:      c.SettlementLease,
			CreditInitialBackoff: c.CreditMinBackoff,
			CreditMaxBackoff:     c.CreditMaxBackoff,
			CreditRetryHorizon:   c.CreditRetryHorizon,
			KeepAliveMaxRetries:  c.KeepAliveMaxRetries,
			TickInterval:         c.TickInterval,
			TickConcurrency:      c.TickConcurrency,
		},
		c.repo, c.ledger, c.notifier, c.scheduler, c.clock,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func appDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".roundd"
	}
	return filepath.Join(home, ".roundd")
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
