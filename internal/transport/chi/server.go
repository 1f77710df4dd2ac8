package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	"github.com/kailas-cloud/dirsearch/internal/domain/account"
	domcat "github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	logpkg "github.com/kailas-cloud/dirsearch/internal/logger"
	healthuc "github.com/kailas-cloud/dirsearch/internal/usecase/health"
	tooluc "github.com/kailas-cloud/dirsearch/internal/usecase/tool"
)

// maxBodyBytes bounds admin and tool request bodies.
const maxBodyBytes = 1 << 20

// CatalogService administers accounts, lists and records.
type CatalogService interface {
	CreateAccount(ctx context.Context, name string) (account.Account, error)
	CreateList(ctx context.Context, accountName, name, recordType string, fields []field.Field) (domcat.List, error)
	GetList(ctx context.Context, accountName, name string) (domcat.List, error)
	ListLists(ctx context.Context, accountName string) ([]domcat.List, error)
	DeleteList(ctx context.Context, accountName, name string) error
	UpsertRecord(ctx context.Context, accountName, listName string, in domrec.Input) (domrec.Record, domrec.Change, error)
}

// AccessAdmin grants and revokes list access.
type AccessAdmin interface {
	Grant(ctx context.Context, agent, listID string) error
	Revoke(ctx context.Context, agent, listID string) error
}

// Resyncer schedules semantic backfills.
type Resyncer interface {
	Resync(ctx context.Context, listID string) (int, error)
}

// ToolCaller runs the search tool.
type ToolCaller interface {
	Call(ctx context.Context, agent string, args tooluc.Args) (tooluc.Response, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the admin API and the HTTP rendition of the search tool.
type Server struct {
	catalog       CatalogService
	access        AccessAdmin
	resync        Resyncer
	tool          ToolCaller
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. resync may be nil when no semantic backend is configured.
func NewServer(
	catalog CatalogService,
	access AccessAdmin,
	resync Resyncer,
	tool ToolCaller,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		catalog: catalog,
		access:  access,
		resync:  resync,
		tool:    tool,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, codeAlreadyExists),
		sentinelHandler(domain.ErrInvalidSchema, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidRecord, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidGrant, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidFilter, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, codeTimeout),
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable, codeUnavailable),
		sentinelHandler(domain.ErrFatal, http.StatusServiceUnavailable, codeUnavailable),
	}
	return s
}

// CreateAccount handles POST /v1/admin/accounts.
func (s *Server) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decode(w, r, &req) {
		return
	}

	a, err := s.catalog.CreateAccount(r.Context(), req.Name)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, AccountResponse{ID: a.ID(), Name: a.Name(), CreatedAt: a.CreatedAt()})
}

// CreateList handles POST /v1/admin/accounts/{account}/lists.
func (s *Server) CreateList(w http.ResponseWriter, r *http.Request) {
	var req CreateListRequest
	if !decode(w, r, &req) {
		return
	}

	fields, err := fieldsFromDTO(req.Fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	l, err := s.catalog.CreateList(r.Context(), chi.URLParam(r, "account"), req.Name, req.RecordType, fields)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v1/admin/accounts/%s/lists/%s", chi.URLParam(r, "account"), l.Name()))
	writeJSON(w, http.StatusCreated, listToDTO(l))
}

// ListLists handles GET /v1/admin/accounts/{account}/lists.
func (s *Server) ListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.catalog.ListLists(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]ListResponse, len(lists))
	for i, l := range lists {
		items[i] = listToDTO(l)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetList handles GET /v1/admin/accounts/{account}/lists/{list}.
func (s *Server) GetList(w http.ResponseWriter, r *http.Request) {
	l, err := s.catalog.GetList(r.Context(), chi.URLParam(r, "account"), chi.URLParam(r, "list"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listToDTO(l))
}

// DeleteList handles DELETE /v1/admin/accounts/{account}/lists/{list}.
func (s *Server) DeleteList(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteList(r.Context(), chi.URLParam(r, "account"), chi.URLParam(r, "list")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertRecord handles PUT /v1/admin/accounts/{account}/lists/{list}/records/{external_id}.
func (s *Server) UpsertRecord(w http.ResponseWriter, r *http.Request) {
	var req UpsertRecordRequest
	if !decode(w, r, &req) {
		return
	}

	rec, change, err := s.catalog.UpsertRecord(r.Context(),
		chi.URLParam(r, "account"), chi.URLParam(r, "list"),
		recordInput(chi.URLParam(r, "external_id"), req),
	)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if change.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, UpsertRecordResponse{
		ID:          rec.ID(),
		Fingerprint: rec.Fingerprint(),
		Created:     change.Created,
		Changed:     change.Changed,
	})
}

// PutGrant handles PUT /v1/admin/grants.
func (s *Server) PutGrant(w http.ResponseWriter, r *http.Request) {
	s.changeGrant(w, r, s.access.Grant)
}

// DeleteGrant handles DELETE /v1/admin/grants.
func (s *Server) DeleteGrant(w http.ResponseWriter, r *http.Request) {
	s.changeGrant(w, r, s.access.Revoke)
}

func (s *Server) changeGrant(
	w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, agent, listID string) error,
) {
	var req GrantRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Agent == "" || req.Account == "" || req.List == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "agent, account and list are required")
		return
	}

	l, err := s.catalog.GetList(r.Context(), req.Account, req.List)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if err := apply(r.Context(), req.Agent, l.ID()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resync handles POST /v1/admin/resync.
func (s *Server) Resync(w http.ResponseWriter, r *http.Request) {
	if s.resync == nil {
		writeError(w, http.StatusConflict, codeUnavailable, "no semantic backend configured")
		return
	}
	var req ResyncRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	listID := ""
	if req.List != "" {
		if req.Account == "" {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "account is required with list")
			return
		}
		l, err := s.catalog.GetList(r.Context(), req.Account, req.List)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		listID = l.ID()
	}

	n, err := s.resync.Resync(r.Context(), listID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ResyncResponse{Enqueued: n})
}

// Search handles POST /v1/search, the HTTP rendition of the search tool. Mounted behind RequireAgent.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	agent := AgentFromContext(r.Context())

	var args tooluc.Args
	if !decode(w, r, &args) {
		return
	}

	resp, err := s.tool.Call(r.Context(), agent, args)
	if err != nil {
		writeToolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// writeToolError renders the closed tool error set.
func writeToolError(w http.ResponseWriter, err error) {
	var te *tooluc.Error
	if !errors.As(err, &te) {
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}
	status := http.StatusServiceUnavailable
	switch te.Code {
	case tooluc.CodeInvalidFilter:
		status = http.StatusBadRequest
	case tooluc.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, te.Code, te.Message)
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
// Validation errors keep their detail since it is caller-correctable.
func safeDomainMessage(err error) string {
	for _, s := range []error{
		domain.ErrInvalidSchema,
		domain.ErrInvalidRecord,
		domain.ErrInvalidGrant,
		domain.ErrInvalidFilter,
	} {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrRateLimited,
		domain.ErrTimeout,
		domain.ErrUpstreamUnavailable,
		domain.ErrFatal,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logpkg.FromContext(r.Context()).Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
