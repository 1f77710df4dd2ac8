package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
)

// fieldRow is the JSON representation of a declared field in lists.fields.
type fieldRow struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	Semantic bool   `json:"semantic,omitempty"`
	Display  bool   `json:"display,omitempty"`
}

func encodeFields(fields []field.Field) (string, error) {
	rows := make([]fieldRow, len(fields))
	for i, f := range fields {
		rows[i] = fieldRow{
			Name:     f.Name(),
			Kind:     string(f.Kind()),
			Path:     f.PathString(),
			Semantic: f.Semantic(),
			Display:  f.Display(),
		}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(raw), nil
}

func decodeFields(raw []byte) ([]field.Field, error) {
	var rows []fieldRow
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	fields := make([]field.Field, len(rows))
	for i, r := range rows {
		fields[i] = field.Reconstruct(r.Name, field.Kind(r.Kind), r.Path, r.Semantic, r.Display)
	}
	return fields, nil
}

// ListColumns is the column list ScanList expects, qualified by the lists table.
const ListColumns = "lists.id, lists.account_id, lists.name, lists.record_type, lists.fields, lists.created_at"

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanList hydrates a List from a row selected with ListColumns.
func ScanList(s Scanner) (catalog.List, error) {
	var (
		id, accountID, name, recordType string
		fieldsRaw                       []byte
		createdAt                       time.Time
	)
	if err := s.Scan(&id, &accountID, &name, &recordType, &fieldsRaw, &createdAt); err != nil {
		return catalog.List{}, err
	}
	fields, err := decodeFields(fieldsRaw)
	if err != nil {
		return catalog.List{}, fmt.Errorf("list %s: %w", id, err)
	}
	return catalog.Reconstruct(id, accountID, name, recordType, fields, createdAt), nil
}
