// Package serialization provides JSON helpers for the metadata maps and
// payloads persisted by the checkpoint and incremental state stores.
package serialization

import (
	"encoding/json"

	"github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// MarshalMetadata serializes a metadata map into a JSON byte slice.
func MarshalMetadata(meta map[string]interface{}) ([]byte, error) {
	module := "serialization"

	if meta == nil {
		logger.Debugf("Metadata is nil. Returning empty JSON object.")
		return []byte("{}"), nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		logger.Errorf("Failed to serialize metadata: %v", err)
		return nil, exception.NewETLError(module, "Failed to serialize metadata", err, false, false)
	}
	return data, nil
}

// UnmarshalMetadata deserializes a JSON byte slice into a metadata map.
// The target map is cleared (or allocated) before decoding.
func UnmarshalMetadata(data []byte, meta *map[string]interface{}) error {
	module := "serialization"

	if *meta == nil {
		*meta = make(map[string]interface{})
	} else {
		for k := range *meta {
			delete(*meta, k)
		}
	}

	if len(data) == 0 || string(data) == "null" || string(data) == "{}" {
		logger.Debugf("Metadata is nil or empty data. Created/cleared empty map.")
		return nil
	}

	err := json.Unmarshal(data, meta)
	if err != nil {
		logger.Errorf("Failed to deserialize metadata: %v", err)
		return exception.NewETLError(module, "Failed to deserialize metadata", err, false, false)
	}
	return nil
}

// MarshalPayload serializes an arbitrary checkpoint payload into JSON.
func MarshalPayload(payload interface{}) ([]byte, error) {
	module := "serialization"

	if payload == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("Failed to serialize payload: %v", err)
		return nil, exception.NewETLError(module, "Failed to serialize payload", err, false, false)
	}
	return data, nil
}

// UnmarshalPayload deserializes a JSON byte slice into the given target.
func UnmarshalPayload(data []byte, target interface{}) error {
	module := "serialization"

	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	err := json.Unmarshal(data, target)
	if err != nil {
		logger.Errorf("Failed to deserialize payload: %v", err)
		return exception.NewETLError(module, "Failed to deserialize payload", err, false, false)
	}
	return nil
}

// MarshalFailures serializes a slice of failure messages into JSON.
func MarshalFailures(failures []string) ([]byte, error) {
	module := "serialization"

	if failures == nil {
		logger.Debugf("Failures is nil. Returning empty JSON array.")
		return []byte("[]"), nil
	}

	data, err := json.Marshal(failures)
	if err != nil {
		logger.Errorf("Failed to serialize failures: %v", err)
		return nil, exception.NewETLError(module, "Failed to serialize failures", err, false, false)
	}
	return data, nil
}

// UnmarshalFailures deserializes a JSON byte slice into a slice of failure messages.
func UnmarshalFailures(data []byte, msgs *[]string) error {
	module := "serialization"

	if len(data) == 0 || string(data) == "null" {
		*msgs = []string{}
		return nil
	}

	err := json.Unmarshal(data, msgs)
	if err != nil {
		logger.Errorf("Failed to deserialize failures: %v", err)
		return exception.NewETLError(module, "Failed to deserialize failures", err, false, false)
	}

	return nil
}
