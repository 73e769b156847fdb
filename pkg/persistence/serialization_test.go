package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeploymentRecord_Serialization(t *testing.T) {
	record := &DeploymentRecord{
		ID:          "run-1",
		AccountKind: "proxied",
		ChainID:     260,
		Status:      DeploymentStatusFunded,
		Owner1:      "0x1111111111111111111111111111111111111111",
		Owner2:      "0x2222222222222222222222222222222222222222",
		Salt:        "0x0000000000000000000000000000000000000000000000000000000000000001",
		CreatedAt:   10,
		UpdatedAt:   12,
	}

	data, err := MarshalDeploymentRecord(record)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "greetingTxHash")

	decoded, err := UnmarshalDeploymentRecord(data)
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestDeploymentRecord_SerializationErrors(t *testing.T) {
	_, err := MarshalDeploymentRecord(nil)
	assert.Error(t, err)

	_, err = UnmarshalDeploymentRecord(nil)
	assert.Error(t, err)

	_, err = UnmarshalDeploymentRecord([]byte("{not json"))
	assert.Error(t, err)
}

func TestDeploymentRecord_Validate(t *testing.T) {
	var nilRecord *DeploymentRecord
	assert.Error(t, nilRecord.Validate())
	assert.Error(t, (&DeploymentRecord{}).Validate())
	assert.NoError(t, (&DeploymentRecord{ID: "x"}).Validate())
}

func TestSortDeployments(t *testing.T) {
	records := []*DeploymentRecord{
		{ID: "c", CreatedAt: 2},
		{ID: "b", CreatedAt: 1},
		{ID: "a", CreatedAt: 2},
	}
	SortDeployments(records)

	ids := []string{records[0].ID, records[1].ID, records[2].ID}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}
