package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB stores T as a JSON document. It scans from both []byte (lib/pq)
// and string (sqlite TEXT) columns.
type JSONB[T any] struct {
	Data T
}

func (p *JSONB[T]) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONB.Scan: unsupported source %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, &p.Data)
}

func (p JSONB[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(p.Data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
