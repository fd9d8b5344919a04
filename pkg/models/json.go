package models

import (
	"database/sql/driver"
	"fmt"

	json "github.com/goccy/go-json"
)

// JSONStringArray stores a []string as a JSON text column.
// Implements sql.Scanner and driver.Valuer for use in GORM models.
type JSONStringArray []string

// Value implements driver.Valuer.
func (a JSONStringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *JSONStringArray) Scan(src any) error {
	if src == nil {
		*a = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONStringArray: %T", src)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(a))
}

// JSONValue stores an arbitrary JSON value (string, array, number) as text.
// Used for Answer values where the shape is string | []string | number.
type JSONValue struct {
	V any
}

// Value implements driver.Valuer.
func (j JSONValue) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSONValue) Scan(src any) error {
	if src == nil {
		j.V = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONValue: %T", src)
	}
	if len(data) == 0 {
		j.V = nil
		return nil
	}
	return json.Unmarshal(data, &j.V)
}

// MarshalJSON renders the wrapped value directly.
func (j JSONValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.V)
}

// UnmarshalJSON accepts the wrapped value directly.
func (j *JSONValue) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &j.V)
}
