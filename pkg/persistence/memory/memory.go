package memory

import (
	"sync"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence"
	"github.com/pkg/errors"
)

// MemoryPersistence keeps the journal in process memory. It is the default
// store when nothing is configured and the one tests use.
type MemoryPersistence struct {
	mu sync.RWMutex

	records   map[string]*persistence.DeploymentRecord
	byAccount map[string]string

	closed bool
}

var _ persistence.IDeploymentStore = (*MemoryPersistence)(nil)

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		records:   make(map[string]*persistence.DeploymentRecord),
		byAccount: make(map[string]string),
	}
}

func (m *MemoryPersistence) SaveDeployment(record *persistence.DeploymentRecord) error {
	if err := record.Validate(); err != nil {
		return errors.Wrap(err, "cannot save deployment")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return persistence.ErrStoreClosed
	}

	if prev, ok := m.records[record.ID]; ok {
		if key := prev.AccountIndexKey(); key != "" && key != record.AccountIndexKey() {
			delete(m.byAccount, key)
		}
	}
	m.records[record.ID] = record.Copy()
	if key := record.AccountIndexKey(); key != "" {
		m.byAccount[key] = record.ID
	}
	return nil
}

func (m *MemoryPersistence) LoadDeployment(id string) (*persistence.DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrStoreClosed
	}
	return m.records[id].Copy(), nil
}

func (m *MemoryPersistence) LoadDeploymentByAccount(account string) (*persistence.DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrStoreClosed
	}

	id, ok := m.byAccount[persistence.NormalizeAccount(account)]
	if !ok {
		return nil, nil
	}
	return m.records[id].Copy(), nil
}

func (m *MemoryPersistence) ListDeployments() ([]*persistence.DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrStoreClosed
	}

	out := make([]*persistence.DeploymentRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Copy())
	}
	persistence.SortDeployments(out)
	return out, nil
}

func (m *MemoryPersistence) DeleteDeployment(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return persistence.ErrStoreClosed
	}

	if r, ok := m.records[id]; ok {
		delete(m.byAccount, r.AccountIndexKey())
		delete(m.records, id)
	}
	return nil
}

func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	m.byAccount = nil
	return nil
}

func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return persistence.ErrStoreClosed
	}
	return nil
}
