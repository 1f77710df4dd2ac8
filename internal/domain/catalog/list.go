package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/dirsearch/internal/domain/account"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
)

// MaxFields is the maximum number of declared fields per list.
const MaxFields = 32

// List is a named collection of records of one record type (immutable value object).
type List struct {
	id         string
	accountID  string
	name       string
	recordType string
	fields     []field.Field
	createdAt  time.Time
}

func validateFields(fields []field.Field) error {
	if len(fields) > MaxFields {
		return fmt.Errorf("too many fields (max %d)", MaxFields)
	}
	seen := make(map[string]bool, len(fields))
	arrays := 0
	for _, f := range fields {
		if seen[f.Name()] {
			return fmt.Errorf("duplicate field name: %s", f.Name())
		}
		seen[f.Name()] = true
		if f.Kind() == field.Array {
			arrays++
		}
	}
	if arrays > 1 {
		return fmt.Errorf("at most one array field per list")
	}
	return nil
}

// New validates and creates a List with a fresh id.
func New(accountID, name, recordType string, fields []field.Field) (List, error) {
	if accountID == "" {
		return List{}, fmt.Errorf("account id is required")
	}
	if err := account.ValidateSlug("list", name); err != nil {
		return List{}, err
	}
	if recordType == "" {
		return List{}, fmt.Errorf("record type is required")
	}
	if len(recordType) > 64 {
		return List{}, fmt.Errorf("record type too long (max 64)")
	}
	if err := validateFields(fields); err != nil {
		return List{}, err
	}

	return List{
		id:         uuid.NewString(),
		accountID:  accountID,
		name:       name,
		recordType: recordType,
		fields:     append([]field.Field(nil), fields...),
		createdAt:  time.Now().UTC(),
	}, nil
}

// Reconstruct creates a List without validation (storage hydration).
func Reconstruct(id, accountID, name, recordType string, fields []field.Field, createdAt time.Time) List {
	return List{
		id:         id,
		accountID:  accountID,
		name:       name,
		recordType: recordType,
		fields:     fields,
		createdAt:  createdAt,
	}
}

// ID returns the list id.
func (l List) ID() string { return l.id }

// AccountID returns the owning account id.
func (l List) AccountID() string { return l.accountID }

// Name returns the list name, unique within its account.
func (l List) Name() string { return l.name }

// RecordType returns the declared record type.
func (l List) RecordType() string { return l.recordType }

// CreatedAt returns the creation time.
func (l List) CreatedAt() time.Time { return l.createdAt }

// Fields returns a copy of the declared fields (built-ins excluded).
func (l List) Fields() []field.Field {
	out := make([]field.Field, len(l.fields))
	copy(out, l.fields)
	return out
}

// FieldByName looks up a built-in or declared field.
func (l List) FieldByName(name string) (field.Field, bool) {
	if f, ok := field.Builtin(name); ok {
		return f, true
	}
	for _, f := range l.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return field.Field{}, false
}

// ArrayField returns the list's tag-set field, if declared.
func (l List) ArrayField() (field.Field, bool) {
	for _, f := range l.fields {
		if f.Kind() == field.Array {
			return f, true
		}
	}
	return field.Field{}, false
}

// SemanticFields returns the declared payload paths that feed the embedding content.
func (l List) SemanticFields() []field.Field {
	var out []field.Field
	for _, f := range l.fields {
		if f.Semantic() {
			out = append(out, f)
		}
	}
	return out
}

// DisplayFields returns the fields shown to callers: name, status, then declared display fields in order.
func (l List) DisplayFields() []field.Field {
	name, _ := field.Builtin(field.Name)
	status, _ := field.Builtin(field.Status)
	out := []field.Field{name, status}
	for _, f := range l.fields {
		if f.Display() {
			out = append(out, f)
		}
	}
	return out
}
