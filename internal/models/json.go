package models

import (
	"database/sql/driver"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSON is a wrapper around gorm.io/datatypes.JSON to allow for custom data type mapping
type JSON struct {
	datatypes.JSON
}

// Value promotes the embedded JSON's Value method
func (j JSON) Value() (driver.Value, error) {
	return j.JSON.Value()
}

// Scan promotes the embedded JSON's Scan method
func (j *JSON) Scan(value interface{}) error {
	return j.JSON.Scan(value)
}

// GormDBDataType ensures the correct data type is used for each database driver.
// This resolves the issue where MSSQL does not support the 'json' data type.
func (JSON) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	case "sqlserver", "mssql":
		return "NVARCHAR(MAX)"
	case "sqlite":
		return "JSON"
	}
	return "TEXT"
}

// JSONFrom marshals v into a JSON column value.
func JSONFrom(v interface{}) (JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return JSON{}, err
	}
	return JSON{datatypes.JSON(raw)}, nil
}

// Map decodes the column into a generic document. An empty column decodes to
// an empty map.
func (j JSON) Map() (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if len(j.JSON) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(j.JSON, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MergeContent applies patch onto existing at the top key level: each patch
// key fully replaces the same key in existing, untouched keys are retained.
// Never a whole-document replacement.
func MergeContent(existing JSON, patch map[string]interface{}) (JSON, error) {
	if len(patch) == 0 {
		return existing, nil
	}
	doc, err := existing.Map()
	if err != nil {
		return JSON{}, err
	}
	for k, v := range patch {
		doc[k] = v
	}
	return JSONFrom(doc)
}
