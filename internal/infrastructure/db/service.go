package db

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/core/ports"
	badgerdb "github.com/lastword-games/roundd/internal/infrastructure/db/badger"
	inmemorydb "github.com/lastword-games/roundd/internal/infrastructure/db/inmemory"
	mongodb "github.com/lastword-games/roundd/internal/infrastructure/db/mongo"
	pgdb "github.com/lastword-games/roundd/internal/infrastructure/db/postgres"
	redisdb "github.com/lastword-games/roundd/internal/infrastructure/db/redis"
	sqlitedb "github.com/lastword-games/roundd/internal/infrastructure/db/sqlite"
)

var (
	roundStoreTypes = map[string]func(...interface{}) (domain.RoundRepository, error){
		"inmemory": inmemorydb.NewRoundRepository,
		"badger":   badgerdb.NewRoundRepository,
		"sqlite":   sqlitedb.NewRoundRepository,
		"postgres": pgdb.NewRoundRepository,
		"redis":    redisdb.NewRoundRepository,
		"mongo":    mongodb.NewRoundRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type service struct {
	roundStore domain.RoundRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	roundStoreFactory, ok := roundStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	storeConfig := config.DataStoreConfig
	switch config.DataStoreType {
	case "sqlite":
		db, err := openSqlite(storeConfig)
		if err != nil {
			return nil, err
		}
		storeConfig = []interface{}{db}
	case "postgres":
		pool, err := openPostgres(storeConfig)
		if err != nil {
			return nil, err
		}
		storeConfig = []interface{}{pool}
	}

	roundStore, err := roundStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create round store: %w", err)
	}

	return &service{roundStore}, nil
}

func (s *service) Rounds() domain.RoundRepository {
	return s.roundStore
}

func (s *service) Close() {
	s.roundStore.Close()
}

func openSqlite(config []interface{}) (interface{}, error) {
	if len(config) != 1 {
		return nil, errors.New("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, errors.New("invalid config")
	}

	db, err := sqlitedb.OpenDb(filepath.Join(baseDir, sqliteDbFile))
	if err != nil {
		return nil, err
	}

	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	source, err := iofs.New(sqlitedb.Migrations, "migration")
	if err != nil {
		return nil, fmt.Errorf("failed to load sqlite migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}

	return db, nil
}

func openPostgres(config []interface{}) (interface{}, error) {
	if len(config) != 1 {
		return nil, errors.New("invalid config")
	}
	dsn, ok := config[0].(string)
	if !ok || dsn == "" {
		return nil, errors.New("invalid config")
	}

	source, err := iofs.New(pgdb.Migrations, "migration")
	if err != nil {
		return nil, fmt.Errorf("failed to load postgres migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrationUrl(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// nolint
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	return pgdb.OpenPool(dsn)
}

// migrationUrl switches the dsn scheme to the one of the pgx migrate driver.
func migrationUrl(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}
