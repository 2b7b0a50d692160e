package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Mapping is a string-keyed JSON object stored in a text column.
type Mapping map[string]string

func (m Mapping) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *Mapping) Scan(value interface{}) error {
	if value == nil {
		*m = Mapping{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported mapping column type %T", value)
	}
	if len(data) == 0 {
		*m = Mapping{}
		return nil
	}
	return json.Unmarshal(data, m)
}
