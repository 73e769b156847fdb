package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalDeploymentRecord serializes a DeploymentRecord to JSON bytes.
func MarshalDeploymentRecord(record *DeploymentRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil DeploymentRecord")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal DeploymentRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalDeploymentRecord deserializes a DeploymentRecord from JSON bytes.
func UnmarshalDeploymentRecord(data []byte) (*DeploymentRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record DeploymentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to DeploymentRecord: %w", err)
	}

	return &record, nil
}
