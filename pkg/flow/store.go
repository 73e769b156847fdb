package flow

import (
	"fmt"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence/badger"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence/memory"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence/redis"
	"go.uber.org/zap"
)

// NewDeploymentStore opens the deployment journal selected by cfg. No type
// means an in-memory journal.
func NewDeploymentStore(cfg *config.PersistenceConfig, logger *zap.Logger) (persistence.IDeploymentStore, error) {
	if cfg == nil {
		return memory.NewMemoryPersistence(), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid persistence config: %w", err)
	}

	switch cfg.Type {
	case config.PersistenceTypeNone, config.PersistenceTypeMemory:
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceTypeBadger:
		return badger.NewBadgerPersistence(cfg.DataPath, logger)
	case config.PersistenceTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %q", cfg.Type)
	}
}

// OpenDeploymentJournal opens an existing journal for inspection. In-memory
// journals are refused since a new process would always find them empty.
func OpenDeploymentJournal(cfg *config.PersistenceConfig, logger *zap.Logger) (persistence.IDeploymentStore, error) {
	if cfg == nil || cfg.Type == config.PersistenceTypeNone || cfg.Type == config.PersistenceTypeMemory {
		return nil, fmt.Errorf("an in-memory journal does not outlive its run, use badger or redis")
	}
	return NewDeploymentStore(cfg, logger)
}
