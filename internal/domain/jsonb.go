package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONBMap adapts a map[string]any to Postgres JSONB, used for Schedule.Config
// and Run.Metadata so the admin surface can evolve those shapes independently
// of this package.
type JSONBMap map[string]any

// Scan implements sql.Scanner.
func (j *JSONBMap) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.New("unsupported type for JSONBMap")
	}

	if len(data) == 0 {
		*j = JSONBMap{}
		return nil
	}

	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer.
func (j *JSONBMap) Value() (driver.Value, error) {
	if j == nil || len(*j) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Merge sets k=v and returns the map for chaining. On a non-nil receiver
// the receiver itself is updated; on a nil receiver a new map is allocated
// and returned, and the receiver stays nil.
func (j JSONBMap) Merge(k string, v any) JSONBMap {
	if j == nil {
		j = JSONBMap{}
	}
	j[k] = v
	return j
}
