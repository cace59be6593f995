package sqlutil

import (
	"database/sql"
	"encoding/json"

	"github.com/sqlc-dev/pqtype"
)

// ToNullString treats the empty string as NULL.
func ToNullString(val string) sql.NullString {
	return sql.NullString{String: val, Valid: val != ""}
}

// FromSqlString converts sql.NullString to Go string with default
func FromSqlString(val sql.NullString, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}

// ToNullJSON marshals v into a jsonb column value. Nil and values that
// marshal to null are stored as NULL.
func ToNullJSON(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: len(raw) > 0 && string(raw) != "null"}, nil
}

// FromNullJSON unmarshals a jsonb column into dst. NULL leaves dst untouched.
func FromNullJSON(val pqtype.NullRawMessage, dst any) error {
	if !val.Valid {
		return nil
	}
	return json.Unmarshal(val.RawMessage, dst)
}
