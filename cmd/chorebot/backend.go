package main

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/config"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/repository/memory"
	"github.com/Kerhoff/ChoreBoT/internal/repository/postgres"
	"github.com/Kerhoff/ChoreBoT/internal/repository/supabase"
	"github.com/Kerhoff/ChoreBoT/internal/service"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
)

// backend bundles the repositories of one data source. newAuth binds the
// credential store of a single session.
type backend struct {
	newAuth  func(store storage.Store) repository.AuthRepository
	families repository.FamilyRepository
	members  repository.MemberRepository
	chores   repository.ChoreRepository
	rewards  repository.RewardRepository
	purger   service.Purger
	closers  []func() error
}

func (b *backend) Close() error {
	var result *multierror.Error
	for _, c := range b.closers {
		if err := c(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func openBackend(cfg *config.Config, l *logrus.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := config.NewDatabase(cfg.DatabaseURL, l)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		return &backend{
			newAuth: func(store storage.Store) repository.AuthRepository {
				return postgres.NewAuthRepository(db.DB, store, cfg.AuthSessionTTL)
			},
			families: postgres.NewFamilyRepository(db.DB),
			members:  postgres.NewMemberRepository(db.DB),
			chores:   postgres.NewChoreRepository(db.DB),
			rewards:  postgres.NewRewardRepository(db.DB),
			purger:   postgres.NewSessionPurger(db.DB),
			closers:  []func() error{db.Close},
		}, nil

	case config.BackendSupabase:
		client, err := supabase.New(supabase.Config{
			URL:        cfg.SupabaseURL,
			AnonKey:    cfg.SupabaseAnonKey,
			ServiceKey: cfg.SupabaseServiceKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Supabase client: %w", err)
		}
		return &backend{
			newAuth: func(store storage.Store) repository.AuthRepository {
				return supabase.NewAuthRepository(client, store)
			},
			families: supabase.NewFamilyRepository(client),
			members:  supabase.NewMemberRepository(client),
			chores:   supabase.NewChoreRepository(client),
			rewards:  supabase.NewRewardRepository(client),
		}, nil

	default:
		l.Warn("Using in-memory backend, data is lost on restart")
		mem := memory.NewBackend()
		return &backend{
			newAuth:  mem.NewAuth,
			families: mem.Families(),
			members:  mem.Members(),
			chores:   mem.Chores(),
			rewards:  mem.Rewards(),
		}, nil
	}
}

// openStore returns the shared session store. Each session later gets its
// own key prefix within it.
func openStore(cfg *config.Config) (storage.Store, func() error, error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		rs, err := storage.NewRedisStore(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil
	case config.StoreMemory:
		return storage.NewMemoryStore(), func() error { return nil }, nil
	default:
		fs, err := storage.NewFileStore(cfg.SessionDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() error { return nil }, nil
	}
}
