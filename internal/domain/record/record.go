package record

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
)

// Record limits.
const (
	MaxNameLength     = 256
	MaxTags           = 64
	MaxTagLength      = 256
	MaxPayloadBytes   = 64 * 1024
	MaxFingerprintLen = 128
)

var externalIDRegex = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// Status is the record visibility flag. Deleted is a soft delete.
type Status string

// Status constants.
const (
	Active   Status = "active"
	Inactive Status = "inactive"
	Deleted  Status = "deleted"
)

// IsValid checks if the status is one of the supported values.
func (s Status) IsValid() bool {
	return s == Active || s == Inactive || s == Deleted
}

// Input is what the ingestion collaborator submits for one record.
type Input struct {
	ExternalID  string
	Name        string
	Status      Status
	Tags        []string
	Payload     map[string]any
	Fingerprint string
}

// Record is a single searchable entry of a list (immutable value object).
type Record struct {
	id          string
	listID      string
	externalID  string
	name        string
	status      Status
	tags        []string
	payload     map[string]any
	fingerprint string
	seq         int64
	createdAt   time.Time
	updatedAt   time.Time
}

// New validates ingestion input and creates a Record with a fresh id.
// An empty fingerprint is replaced by a content fingerprint.
func New(listID string, in Input) (Record, error) {
	if listID == "" {
		return Record{}, fmt.Errorf("list id is required")
	}
	if !externalIDRegex.MatchString(in.ExternalID) {
		return Record{}, fmt.Errorf("external id must be 1-128 chars of letters, digits, '.', '_', ':', '@', '-'")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Record{}, fmt.Errorf("record name is required")
	}
	if len(name) > MaxNameLength {
		return Record{}, fmt.Errorf("record name too long (max %d)", MaxNameLength)
	}

	status := in.Status
	if status == "" {
		status = Active
	}
	if !status.IsValid() {
		return Record{}, fmt.Errorf("invalid status %q", status)
	}

	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return Record{}, err
	}

	payload := in.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if len(raw) > MaxPayloadBytes {
		return Record{}, fmt.Errorf("payload too large (max %d bytes)", MaxPayloadBytes)
	}

	fp := strings.TrimSpace(in.Fingerprint)
	if fp == "" {
		fp = ComputeFingerprint(name, status, tags, payload)
	}
	if len(fp) > MaxFingerprintLen {
		return Record{}, fmt.Errorf("fingerprint too long (max %d)", MaxFingerprintLen)
	}

	now := time.Now().UTC()
	return Record{
		id:          uuid.NewString(),
		listID:      listID,
		externalID:  in.ExternalID,
		name:        name,
		status:      status,
		tags:        tags,
		payload:     payload,
		fingerprint: fp,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(
	id, listID, externalID, name string, status Status,
	tags []string, payload map[string]any, fingerprint string,
	seq int64, createdAt, updatedAt time.Time,
) Record {
	if payload == nil {
		payload = map[string]any{}
	}
	return Record{
		id:          id,
		listID:      listID,
		externalID:  externalID,
		name:        name,
		status:      status,
		tags:        tags,
		payload:     payload,
		fingerprint: fingerprint,
		seq:         seq,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func normalizeTags(in []string) ([]string, error) {
	if len(in) > MaxTags {
		return nil, fmt.Errorf("too many tags (max %d)", MaxTags)
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("tags must not be empty")
		}
		if len(t) > MaxTagLength {
			return nil, fmt.Errorf("tag too long (max %d)", MaxTagLength)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// ID returns the record id.
func (r Record) ID() string { return r.id }

// ListID returns the owning list id.
func (r Record) ListID() string { return r.listID }

// ExternalID returns the ingestion key.
func (r Record) ExternalID() string { return r.externalID }

// Name returns the record name.
func (r Record) Name() string { return r.name }

// Status returns the visibility flag.
func (r Record) Status() Status { return r.status }

// IsActive reports whether the record is active.
func (r Record) IsActive() bool { return r.status == Active }

// Tags returns a copy of the tag set.
func (r Record) Tags() []string {
	out := make([]string, len(r.tags))
	copy(out, r.tags)
	return out
}

// Payload returns the semi-structured payload. Callers must not mutate it.
func (r Record) Payload() map[string]any { return r.payload }

// Fingerprint returns the content version.
func (r Record) Fingerprint() string { return r.fingerprint }

// Seq returns the insertion sequence; higher means more recently inserted.
func (r Record) Seq() int64 { return r.seq }

// CreatedAt returns the insertion time.
func (r Record) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last content change time.
func (r Record) UpdatedAt() time.Time { return r.updatedAt }

// PayloadValue walks a payload path.
func (r Record) PayloadValue(path []string) (any, bool) {
	var cur any = r.payload
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Content renders the text that is embedded for the record: its name plus the list's semantic fields.
func (r Record) Content(l catalog.List) string {
	var b strings.Builder
	b.WriteString(r.name)
	for _, f := range l.SemanticFields() {
		v, ok := r.PayloadValue(f.Path())
		if !ok {
			continue
		}
		s := FormatValue(v)
		if s == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(f.Name())
		b.WriteString(": ")
		b.WriteString(s)
	}
	return b.String()
}

// FormatValue renders a payload value as display text. Nested objects render as compact JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := FormatValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}

// Change describes the effect of an upsert.
type Change struct {
	Created bool // no record with this external id existed
	Changed bool // content was written (always true when Created)
}
