package persistence

import (
	"fmt"
	"sort"
	"strings"
)

// DeploymentStatus is the last step a run completed
type DeploymentStatus string

const (
	DeploymentStatusStarted         DeploymentStatus = "started"
	DeploymentStatusFactoryDeployed DeploymentStatus = "factoryDeployed"
	DeploymentStatusAccountDeployed DeploymentStatus = "accountDeployed"
	DeploymentStatusFunded          DeploymentStatus = "funded"
	DeploymentStatusCompleted       DeploymentStatus = "completed"
	DeploymentStatusFailed          DeploymentStatus = "failed"
)

// DeploymentRecord describes one run of the deployment flow. Addresses and
// hashes are hex strings.
type DeploymentRecord struct {
	ID          string           `json:"id"`
	AccountKind string           `json:"accountKind"`
	ChainID     uint64           `json:"chainId"`
	Status      DeploymentStatus `json:"status"`
	Error       string           `json:"error,omitempty"`

	Deployer       string `json:"deployer"`
	Factory        string `json:"factory,omitempty"`
	Implementation string `json:"implementation,omitempty"`
	Account        string `json:"account,omitempty"`
	Owner1         string `json:"owner1"`
	Owner2         string `json:"owner2"`
	Salt           string `json:"salt"`
	BytecodeHash   string `json:"bytecodeHash,omitempty"`

	// Transaction hashes of each step, empty until the step is included
	FactoryTxHash        string `json:"factoryTxHash,omitempty"`
	ImplementationTxHash string `json:"implementationTxHash,omitempty"`
	DeployAccountTxHash  string `json:"deployAccountTxHash,omitempty"`
	FundingTxHash        string `json:"fundingTxHash,omitempty"`
	GreetingTxHash       string `json:"greetingTxHash,omitempty"`

	GreetingBefore string `json:"greetingBefore,omitempty"`
	GreetingAfter  string `json:"greetingAfter,omitempty"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

func (dr *DeploymentRecord) Validate() error {
	if dr == nil {
		return fmt.Errorf("deployment record is nil")
	}
	if dr.ID == "" {
		return fmt.Errorf("deployment record has no id")
	}
	return nil
}

// Copy returns a copy the caller may modify freely
func (dr *DeploymentRecord) Copy() *DeploymentRecord {
	if dr == nil {
		return nil
	}
	c := *dr
	return &c
}

// AccountIndexKey is the normalized form account addresses are indexed
// under. Empty when the account is not known yet.
func (dr *DeploymentRecord) AccountIndexKey() string {
	return NormalizeAccount(dr.Account)
}

// NormalizeAccount lower-cases a hex address and adds a missing 0x prefix
func NormalizeAccount(account string) string {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return ""
	}
	if !strings.HasPrefix(account, "0x") {
		account = "0x" + account
	}
	return account
}

// SortDeployments orders records by creation time, then id
func SortDeployments(records []*DeploymentRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})
}
