package badger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRecord(id string, createdAt int64) *persistence.DeploymentRecord {
	return &persistence.DeploymentRecord{
		ID:          id,
		AccountKind: "proxied",
		ChainID:     260,
		Status:      persistence.DeploymentStatusStarted,
		Owner1:      "0x1111111111111111111111111111111111111111",
		Owner2:      "0x2222222222222222222222222222222222222222",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func openTestStore(t *testing.T, dir string) *BadgerPersistence {
	t.Helper()
	bp, err := NewBadgerPersistence(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	return bp
}

func TestBadgerPersistence_SaveAndLoad(t *testing.T) {
	bp := openTestStore(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	record := newRecord("run-1", 100)
	record.Account = "0x3333333333333333333333333333333333333333"
	require.NoError(t, bp.SaveDeployment(record))

	loaded, err := bp.LoadDeployment("run-1")
	require.NoError(t, err)
	assert.Equal(t, record, loaded)

	missing, err := bp.LoadDeployment("missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, bp.SaveDeployment(nil))
}

func TestBadgerPersistence_ListAndDelete(t *testing.T) {
	bp := openTestStore(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	empty, err := bp.ListDeployments()
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, bp.SaveDeployment(newRecord("b", 200)))
	require.NoError(t, bp.SaveDeployment(newRecord("a", 100)))

	all, err := bp.ListDeployments()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	require.NoError(t, bp.DeleteDeployment("a"))
	require.NoError(t, bp.DeleteDeployment("a"))

	all, err = bp.ListDeployments()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].ID)
}

func TestBadgerPersistence_Close(t *testing.T) {
	bp := openTestStore(t, t.TempDir())
	require.NoError(t, bp.HealthCheck())

	require.NoError(t, bp.Close())
	require.NoError(t, bp.Close())

	assert.ErrorIs(t, bp.HealthCheck(), persistence.ErrStoreClosed)
	assert.ErrorIs(t, bp.SaveDeployment(newRecord("run-1", 1)), persistence.ErrStoreClosed)
	_, err := bp.LoadDeployment("run-1")
	assert.ErrorIs(t, err, persistence.ErrStoreClosed)
}

func TestBadgerPersistence_AccountIndex(t *testing.T) {
	dir := t.TempDir()
	bp := openTestStore(t, dir)

	record := newRecord("run-1", 100)
	require.NoError(t, bp.SaveDeployment(record))

	missing, err := bp.LoadDeploymentByAccount("0x3333333333333333333333333333333333333333")
	require.NoError(t, err)
	assert.Nil(t, missing)

	record.Account = "0x3333333333333333333333333333333333333333"
	record.Status = persistence.DeploymentStatusAccountDeployed
	require.NoError(t, bp.SaveDeployment(record))
	require.NoError(t, bp.Close())

	bp = openTestStore(t, dir)
	defer func() { _ = bp.Close() }()

	found, err := bp.LoadDeploymentByAccount("3333333333333333333333333333333333333333")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "run-1", found.ID)

	// re-pointing the record drops the old index entry
	record.Account = "0x4444444444444444444444444444444444444444"
	require.NoError(t, bp.SaveDeployment(record))
	old, err := bp.LoadDeploymentByAccount("0x3333333333333333333333333333333333333333")
	require.NoError(t, err)
	assert.Nil(t, old)

	require.NoError(t, bp.DeleteDeployment("run-1"))
	gone, err := bp.LoadDeploymentByAccount("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestBadgerPersistence_AcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	bp := openTestStore(t, dir)
	record := newRecord("run-1", 100)
	record.Status = persistence.DeploymentStatusAccountDeployed
	require.NoError(t, bp.SaveDeployment(record))
	require.NoError(t, bp.Close())

	reopened := openTestStore(t, dir)
	defer func() { _ = reopened.Close() }()

	loaded, err := reopened.LoadDeployment("run-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, persistence.DeploymentStatusAccountDeployed, loaded.Status)
}

func TestBadgerPersistence_RejectsUnknownSchema(t *testing.T) {
	dir := t.TempDir()

	bp := openTestStore(t, dir)
	err := bp.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keySchemaVersion), []byte("v0"))
	})
	require.NoError(t, err)
	require.NoError(t, bp.Close())

	_, err = NewBadgerPersistence(dir, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported journal schema")
}

func TestBadgerPersistence_ThreadSafety(t *testing.T) {
	bp := openTestStore(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, bp.SaveDeployment(newRecord(fmt.Sprintf("run-%d", i), int64(i))))
		}(i)
	}
	wg.Wait()

	all, err := bp.ListDeployments()
	require.NoError(t, err)
	assert.Len(t, all, 10)
}
