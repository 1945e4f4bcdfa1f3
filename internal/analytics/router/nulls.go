package router

import (
	"strings"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

func nullString(value string) cbigquery.NullString {
	trimmed := strings.TrimSpace(value)
	return cbigquery.NullString{StringVal: trimmed, Valid: trimmed != ""}
}

// nullUUID maps the zero uuid to NULL.
func nullUUID(id uuid.UUID) cbigquery.NullString {
	if id == uuid.Nil {
		return cbigquery.NullString{}
	}
	return nullString(id.String())
}

func nullInt(value int64) cbigquery.NullInt64 {
	return cbigquery.NullInt64{Int64: value, Valid: true}
}
