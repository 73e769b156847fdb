package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Key layout:
//
//	deployment:<id>        -> JSON DeploymentRecord
//	account:<0xaccount>    -> <id>
//	metadata:schema_version
const (
	prefixDeployment = "deployment:"
	prefixAccount    = "account:"
	keySchemaVersion = "metadata:schema_version"

	schemaVersion = "v1"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

// BadgerPersistence journals deployments in an embedded Badger database.
// Writes are fsynced so a record survives a crash right after the step it
// describes.
type BadgerPersistence struct {
	db     *badgerdb.DB
	logger *zap.Logger

	stopGC context.CancelFunc
	gcDone chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ persistence.IDeploymentStore = (*BadgerPersistence)(nil)

// NewBadgerPersistence opens (or creates) the journal at dataPath.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	dir, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(dir).
		WithLogger(&badgerLoggerAdapter{logger: logger}).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dir, err)
	}

	if err := checkSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
		stopGC: cancel,
		gcDone: make(chan struct{}),
	}
	go bp.collectGarbage(ctx)

	logger.Sugar().Infow("Opened badger deployment journal", "path", dir)
	return bp, nil
}

// checkSchema stamps a fresh database and rejects one written by another
// schema version.
func checkSchema(db *badgerdb.DB) error {
	return db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(schemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		found, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		if string(found) != schemaVersion {
			return fmt.Errorf("unsupported journal schema %q, want %q", found, schemaVersion)
		}
		return nil
	})
}

func (b *BadgerPersistence) collectGarbage(ctx context.Context) {
	defer close(b.gcDone)

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.db.RunValueLogGC(gcDiscardRatio); err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger value log GC failed", "error", err)
			}
		}
	}
}

// view and update run fn under the read lock so Close waits for in-flight
// transactions.
func (b *BadgerPersistence) view(fn func(txn *badgerdb.Txn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return persistence.ErrStoreClosed
	}
	return b.db.View(fn)
}

func (b *BadgerPersistence) update(fn func(txn *badgerdb.Txn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return persistence.ErrStoreClosed
	}
	return b.db.Update(fn)
}

func deploymentKey(id string) []byte {
	return []byte(prefixDeployment + id)
}

func accountKey(normalized string) []byte {
	return []byte(prefixAccount + normalized)
}

// getRecord returns nil without error when id is unknown
func getRecord(txn *badgerdb.Txn, id string) (*persistence.DeploymentRecord, error) {
	item, err := txn.Get(deploymentKey(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return persistence.UnmarshalDeploymentRecord(raw)
}

func (b *BadgerPersistence) SaveDeployment(record *persistence.DeploymentRecord) error {
	if err := record.Validate(); err != nil {
		return errors.Wrap(err, "cannot save deployment")
	}
	raw, err := persistence.MarshalDeploymentRecord(record)
	if err != nil {
		return err
	}

	err = b.update(func(txn *badgerdb.Txn) error {
		prev, err := getRecord(txn, record.ID)
		if err != nil {
			return err
		}
		if prev != nil {
			if key := prev.AccountIndexKey(); key != "" && key != record.AccountIndexKey() {
				if err := txn.Delete(accountKey(key)); err != nil {
					return err
				}
			}
		}
		if key := record.AccountIndexKey(); key != "" {
			if err := txn.Set(accountKey(key), []byte(record.ID)); err != nil {
				return err
			}
		}
		return txn.Set(deploymentKey(record.ID), raw)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to save deployment %s", record.ID)
	}
	return nil
}

func (b *BadgerPersistence) LoadDeployment(id string) (*persistence.DeploymentRecord, error) {
	var record *persistence.DeploymentRecord
	err := b.view(func(txn *badgerdb.Txn) error {
		var err error
		record, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load deployment %s", id)
	}
	return record, nil
}

func (b *BadgerPersistence) LoadDeploymentByAccount(account string) (*persistence.DeploymentRecord, error) {
	var record *persistence.DeploymentRecord
	err := b.view(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(accountKey(persistence.NormalizeAccount(account)))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		record, err = getRecord(txn, string(id))
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up deployment of account %s", account)
	}
	return record, nil
}

func (b *BadgerPersistence) ListDeployments() ([]*persistence.DeploymentRecord, error) {
	records := make([]*persistence.DeploymentRecord, 0)
	err := b.view(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixDeployment)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			record, err := persistence.UnmarshalDeploymentRecord(raw)
			if err != nil {
				return errors.Wrapf(err, "corrupt record at %s", it.Item().Key())
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list deployments")
	}

	persistence.SortDeployments(records)
	return records, nil
}

func (b *BadgerPersistence) DeleteDeployment(id string) error {
	err := b.update(func(txn *badgerdb.Txn) error {
		record, err := getRecord(txn, id)
		if err != nil || record == nil {
			return err
		}
		if key := record.AccountIndexKey(); key != "" {
			if err := txn.Delete(accountKey(key)); err != nil {
				return err
			}
		}
		return txn.Delete(deploymentKey(id))
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete deployment %s", id)
	}
	return nil
}

// Close stops garbage collection and closes the database
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	b.stopGC()
	<-b.gcDone

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	b.logger.Sugar().Infow("Closed badger deployment journal")
	return nil
}

func (b *BadgerPersistence) HealthCheck() error {
	return b.view(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get([]byte(keySchemaVersion)); err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		return nil
	})
}
