package metrics

import (
	"encoding/json"
	"log/slog"
)

func (r *Reading) ToJsonBytes() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("failed to marshal reading", "err", err)
		return nil
	}
	return data
}

// Returns nil when data is not a reading.
func ReadingFromJsonBytes(data []byte) *Reading {
	var reading Reading
	if err := json.Unmarshal(data, &reading); err != nil {
		return nil
	}
	return &reading
}
