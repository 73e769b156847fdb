package redis

import (
	"context"
	"sync"
	"time"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersion = "v1"

	redisTimeout = 5 * time.Second
)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix namespaces every key, e.g. "staging:" gives
	// "staging:multisig:deployment:<id>"
	KeyPrefix string
}

// keySpace lays out the journal under one prefix. Redis has no prefix
// iteration, so record ids are also kept in a set and accounts in a hash.
type keySpace struct {
	prefix   string
	schema   string
	index    string
	accounts string
}

func newKeySpace(prefix string) keySpace {
	return keySpace{
		prefix:   prefix,
		schema:   prefix + "multisig:metadata:schema_version",
		index:    prefix + "multisig:deployments:index",
		accounts: prefix + "multisig:deployments:accounts",
	}
}

func (k keySpace) record(id string) string {
	return k.prefix + "multisig:deployment:" + id
}

// RedisPersistence journals deployments in Redis so several operators can
// inspect the same runs.
type RedisPersistence struct {
	client *redis.Client
	keys   keySpace
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

var _ persistence.IDeploymentStore = (*RedisPersistence)(nil)

func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, errors.New("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	rp := &RedisPersistence{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		keys:   newKeySpace(cfg.KeyPrefix),
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := rp.client.Ping(ctx).Err(); err != nil {
		_ = rp.client.Close()
		return nil, errors.Wrapf(err, "failed to connect to Redis at %s", cfg.Address)
	}
	if err := rp.checkSchema(ctx); err != nil {
		_ = rp.client.Close()
		return nil, err
	}

	logger.Sugar().Infow("Connected redis deployment journal",
		"address", cfg.Address,
		"db", cfg.DB,
		"keyPrefix", cfg.KeyPrefix,
	)
	return rp, nil
}

// checkSchema stamps an empty key space and rejects one written by another
// schema version. SetNX keeps two processes starting together consistent.
func (r *RedisPersistence) checkSchema(ctx context.Context) error {
	if _, err := r.client.SetNX(ctx, r.keys.schema, schemaVersion, 0).Result(); err != nil {
		return errors.Wrap(err, "failed to write schema version")
	}
	found, err := r.client.Get(ctx, r.keys.schema).Result()
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}
	if found != schemaVersion {
		return errors.Errorf("unsupported journal schema %q, want %q", found, schemaVersion)
	}
	return nil
}

// do runs fn with a bounded context unless the store is closed
func (r *RedisPersistence) do(fn func(ctx context.Context) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return persistence.ErrStoreClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return fn(ctx)
}

func (r *RedisPersistence) get(ctx context.Context, id string) (*persistence.DeploymentRecord, error) {
	raw, err := r.client.Get(ctx, r.keys.record(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return persistence.UnmarshalDeploymentRecord(raw)
}

func (r *RedisPersistence) SaveDeployment(record *persistence.DeploymentRecord) error {
	if err := record.Validate(); err != nil {
		return errors.Wrap(err, "cannot save deployment")
	}
	raw, err := persistence.MarshalDeploymentRecord(record)
	if err != nil {
		return err
	}

	err = r.do(func(ctx context.Context) error {
		prev, err := r.get(ctx, record.ID)
		if err != nil {
			return err
		}

		pipe := r.client.TxPipeline()
		if prev != nil {
			if key := prev.AccountIndexKey(); key != "" && key != record.AccountIndexKey() {
				pipe.HDel(ctx, r.keys.accounts, key)
			}
		}
		pipe.Set(ctx, r.keys.record(record.ID), raw, 0)
		pipe.SAdd(ctx, r.keys.index, record.ID)
		if key := record.AccountIndexKey(); key != "" {
			pipe.HSet(ctx, r.keys.accounts, key, record.ID)
		}
		_, err = pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to save deployment %s", record.ID)
	}
	return nil
}

func (r *RedisPersistence) LoadDeployment(id string) (*persistence.DeploymentRecord, error) {
	var record *persistence.DeploymentRecord
	err := r.do(func(ctx context.Context) error {
		var err error
		record, err = r.get(ctx, id)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load deployment %s", id)
	}
	return record, nil
}

func (r *RedisPersistence) LoadDeploymentByAccount(account string) (*persistence.DeploymentRecord, error) {
	var record *persistence.DeploymentRecord
	err := r.do(func(ctx context.Context) error {
		id, err := r.client.HGet(ctx, r.keys.accounts, persistence.NormalizeAccount(account)).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		record, err = r.get(ctx, id)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up deployment of account %s", account)
	}
	return record, nil
}

func (r *RedisPersistence) ListDeployments() ([]*persistence.DeploymentRecord, error) {
	records := make([]*persistence.DeploymentRecord, 0)
	err := r.do(func(ctx context.Context) error {
		ids, err := r.client.SMembers(ctx, r.keys.index).Result()
		if err != nil || len(ids) == 0 {
			return err
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = r.keys.record(id)
		}
		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}

		var stale []interface{}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				stale = append(stale, ids[i])
				continue
			}
			record, err := persistence.UnmarshalDeploymentRecord([]byte(raw))
			if err != nil {
				r.logger.Sugar().Warnw("Skipping unreadable deployment record", "key", keys[i], "error", err)
				continue
			}
			records = append(records, record)
		}
		if len(stale) > 0 {
			if err := r.client.SRem(ctx, r.keys.index, stale...).Err(); err != nil {
				r.logger.Sugar().Warnw("Failed to drop stale journal index entries", "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list deployments")
	}

	persistence.SortDeployments(records)
	return records, nil
}

func (r *RedisPersistence) DeleteDeployment(id string) error {
	err := r.do(func(ctx context.Context) error {
		record, err := r.get(ctx, id)
		if err != nil {
			return err
		}

		pipe := r.client.TxPipeline()
		pipe.Del(ctx, r.keys.record(id))
		pipe.SRem(ctx, r.keys.index, id)
		if record != nil && record.AccountIndexKey() != "" {
			pipe.HDel(ctx, r.keys.accounts, record.AccountIndexKey())
		}
		_, err = pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete deployment %s", id)
	}
	return nil
}

func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return errors.Wrap(err, "failed to close Redis client")
	}
	r.logger.Sugar().Info("Closed redis deployment journal")
	return nil
}

func (r *RedisPersistence) HealthCheck() error {
	return r.do(func(ctx context.Context) error {
		found, err := r.client.Get(ctx, r.keys.schema).Result()
		if errors.Is(err, redis.Nil) {
			return errors.New("journal schema version is missing")
		}
		if err != nil {
			return errors.Wrap(err, "redis health check failed")
		}
		if found != schemaVersion {
			return errors.Errorf("unsupported journal schema %q", found)
		}
		return nil
	})
}
