package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeJSONL renders items as newline-delimited JSON, one object per line.
// Encoding is deterministic for a given input order, which is what makes
// snapshot writes idempotent at the byte level.
func EncodeJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	for i, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode jsonl item %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// DecodeJSONL parses newline-delimited JSON. Blank lines are skipped; a
// malformed line fails the whole decode rather than yielding a partial set.
func DecodeJSONL[T any](data []byte) ([]T, error) {
	items := []T{}
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, fmt.Errorf("decode jsonl line %d: %w", i+1, err)
		}
		items = append(items, item)
	}
	return items, nil
}
