package chi

import (
	"time"

	domcat "github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
)

// Error codes of the HTTP API.
const (
	codeBadRequest       = "bad_request"
	codeUnauthorized     = "unauthorized"
	codeValidationFailed = "validation_failed"
	codeNotFound         = "not_found"
	codeAlreadyExists    = "already_exists"
	codeRateLimited      = "rate_limited"
	codeTimeout          = "timeout"
	codeUnavailable      = "unavailable"
	codeInternal         = "internal_error"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateAccountRequest is the body of POST /v1/admin/accounts.
type CreateAccountRequest struct {
	Name string `json:"name"`
}

// AccountResponse describes an account.
type AccountResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// FieldDTO declares one list field.
type FieldDTO struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	Semantic bool   `json:"semantic,omitempty"`
	Display  bool   `json:"display,omitempty"`
}

// CreateListRequest is the body of POST /v1/admin/accounts/{account}/lists.
type CreateListRequest struct {
	Name       string     `json:"name"`
	RecordType string     `json:"record_type"`
	Fields     []FieldDTO `json:"fields"`
}

// ListResponse describes a list and its schema.
type ListResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	RecordType string     `json:"record_type"`
	Fields     []FieldDTO `json:"fields"`
	CreatedAt  time.Time  `json:"created_at"`
}

// UpsertRecordRequest is the body of PUT .../records/{external_id}.
type UpsertRecordRequest struct {
	Name        string         `json:"name"`
	Status      string         `json:"status,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
}

// UpsertRecordResponse reports what an upsert did.
type UpsertRecordResponse struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	Created     bool   `json:"created"`
	Changed     bool   `json:"changed"`
}

// GrantRequest is the body of PUT and DELETE /v1/admin/grants.
type GrantRequest struct {
	Agent   string `json:"agent"`
	Account string `json:"account"`
	List    string `json:"list"`
}

// ResyncRequest is the body of POST /v1/admin/resync. Empty fields widen the scope.
type ResyncRequest struct {
	Account string `json:"account,omitempty"`
	List    string `json:"list,omitempty"`
}

// ResyncResponse reports how many records were scheduled.
type ResyncResponse struct {
	Enqueued int `json:"enqueued"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func fieldsFromDTO(in []FieldDTO) ([]field.Field, error) {
	out := make([]field.Field, 0, len(in))
	for _, f := range in {
		ff, err := field.New(f.Name, field.Kind(f.Kind), field.Options{
			Path:     f.Path,
			Semantic: f.Semantic,
			Display:  f.Display,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ff)
	}
	return out, nil
}

func listToDTO(l domcat.List) ListResponse {
	fields := make([]FieldDTO, 0, len(l.Fields()))
	for _, f := range l.Fields() {
		fields = append(fields, FieldDTO{
			Name:     f.Name(),
			Kind:     string(f.Kind()),
			Path:     f.PathString(),
			Semantic: f.Semantic(),
			Display:  f.Display(),
		})
	}
	return ListResponse{
		ID:         l.ID(),
		Name:       l.Name(),
		RecordType: l.RecordType(),
		Fields:     fields,
		CreatedAt:  l.CreatedAt(),
	}
}

func recordInput(externalID string, req UpsertRecordRequest) domrec.Input {
	return domrec.Input{
		ExternalID:  externalID,
		Name:        req.Name,
		Status:      domrec.Status(req.Status),
		Tags:        req.Tags,
		Payload:     req.Payload,
		Fingerprint: req.Fingerprint,
	}
}
