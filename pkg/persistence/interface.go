package persistence

import "github.com/pkg/errors"

// ErrStoreClosed is returned by every call made after Close
var ErrStoreClosed = errors.New("deployment journal is closed")

// IDeploymentStore journals deployment runs so a run can be inspected, and
// an interrupted run resumed by hand, after the process exits. All
// implementations must be safe for concurrent use.
//
// Records never contain key material or signatures.
type IDeploymentStore interface {
	// SaveDeployment writes record under record.ID, replacing any previous
	// record with the same ID. Once record.Account is set the record is also
	// reachable through LoadDeploymentByAccount.
	SaveDeployment(record *DeploymentRecord) error

	// LoadDeployment returns the record with id, or nil if there is none.
	// An error is returned only on storage failure.
	LoadDeployment(id string) (*DeploymentRecord, error)

	// LoadDeploymentByAccount returns the run that deployed account, or nil.
	// The lookup is case insensitive.
	LoadDeploymentByAccount(account string) (*DeploymentRecord, error)

	// ListDeployments returns every record ordered by creation time.
	ListDeployments() ([]*DeploymentRecord, error)

	// DeleteDeployment removes the record with id and its account index
	// entry. Idempotent.
	DeleteDeployment(id string) error

	// Close releases the store. Idempotent.
	Close() error

	// HealthCheck returns nil if the store is usable
	HealthCheck() error
}
