package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	"github.com/kailas-cloud/dirsearch/internal/domain/account"
	domcat "github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	healthuc "github.com/kailas-cloud/dirsearch/internal/usecase/health"
	tooluc "github.com/kailas-cloud/dirsearch/internal/usecase/tool"
)

// --- Mocks ---

type mockCatalog struct {
	lists      map[string]domcat.List
	err        error
	change     domrec.Change
	lastInput  domrec.Input
	lastFields []field.Field
}

func (m *mockCatalog) CreateAccount(_ context.Context, name string) (account.Account, error) {
	if m.err != nil {
		return account.Account{}, m.err
	}
	return account.New(name)
}

func (m *mockCatalog) CreateList(
	_ context.Context, _, name, recordType string, fields []field.Field,
) (domcat.List, error) {
	m.lastFields = fields
	if m.err != nil {
		return domcat.List{}, m.err
	}
	return domcat.New("acc-1", name, recordType, fields)
}

func (m *mockCatalog) GetList(_ context.Context, _, name string) (domcat.List, error) {
	l, ok := m.lists[name]
	if !ok {
		return domcat.List{}, fmt.Errorf("list %s: %w", name, domain.ErrNotFound)
	}
	return l, nil
}

func (m *mockCatalog) ListLists(context.Context, string) ([]domcat.List, error) {
	out := make([]domcat.List, 0, len(m.lists))
	for _, l := range m.lists {
		out = append(out, l)
	}
	return out, m.err
}

func (m *mockCatalog) DeleteList(_ context.Context, _, name string) error {
	if _, ok := m.lists[name]; !ok {
		return domain.ErrNotFound
	}
	return m.err
}

func (m *mockCatalog) UpsertRecord(
	_ context.Context, _, listName string, in domrec.Input,
) (domrec.Record, domrec.Change, error) {
	m.lastInput = in
	if m.err != nil {
		return domrec.Record{}, domrec.Change{}, m.err
	}
	rec, err := domrec.New(m.lists[listName].ID(), in)
	if err != nil {
		return domrec.Record{}, domrec.Change{}, fmt.Errorf("%w: %w", domain.ErrInvalidRecord, err)
	}
	return rec, m.change, nil
}

type mockAccess struct {
	granted map[string]string
	revoked map[string]string
}

func (m *mockAccess) Grant(_ context.Context, agent, listID string) error {
	m.granted[agent] = listID
	return nil
}

func (m *mockAccess) Revoke(_ context.Context, agent, listID string) error {
	m.revoked[agent] = listID
	return nil
}

type mockResyncer struct {
	lastListID string
	n          int
}

func (m *mockResyncer) Resync(_ context.Context, listID string) (int, error) {
	m.lastListID = listID
	return m.n, nil
}

type mockTool struct {
	resp      tooluc.Response
	err       error
	lastAgent string
	lastArgs  tooluc.Args
}

func (m *mockTool) Call(_ context.Context, agent string, args tooluc.Args) (tooluc.Response, error) {
	m.lastAgent = agent
	m.lastArgs = args
	return m.resp, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- Fixtures ---

type fixture struct {
	catalog *mockCatalog
	access  *mockAccess
	resync  *mockResyncer
	tool    *mockTool
	health  *mockHealth
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doctors, err := domcat.New("acc-1", "doctors", "doctor", nil)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	f := &fixture{
		catalog: &mockCatalog{lists: map[string]domcat.List{"doctors": doctors}},
		access:  &mockAccess{granted: map[string]string{}, revoked: map[string]string{}},
		resync:  &mockResyncer{n: 3},
		tool:    &mockTool{},
		health:  &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
	}
	srv := NewServer(f.catalog, f.access, f.resync, f.tool, f.health, nil)
	f.handler = NewRouter(srv, RouterConfig{AdminKeys: []string{"admin"}, APIKeys: []string{"api"}})
	return f
}

func (f *fixture) do(method, path, key string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return e
}

// --- Tests ---

func TestHealth_OpenAndStatus(t *testing.T) {
	f := newFixture(t)
	if rr := f.do("GET", "/health", "", nil); rr.Code != http.StatusOK {
		t.Errorf("health: got %d, want 200", rr.Code)
	}

	f.health.report = healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{
		"semantic_index": healthuc.CheckError,
	}}
	if rr := f.do("GET", "/health", "", nil); rr.Code != http.StatusOK {
		t.Errorf("degraded health: got %d, want 200", rr.Code)
	}

	f.health.report = healthuc.Report{Status: healthuc.Unhealthy, Checks: map[string]healthuc.CheckResult{
		"database": healthuc.CheckError,
	}}
	rr := f.do("GET", "/health", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: got %d, want 503", rr.Code)
	}
	var body HealthResponse
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if body.Status != "error" || body.Checks["database"] != "error" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAdmin_RequiresAdminKey(t *testing.T) {
	f := newFixture(t)
	for _, key := range []string{"", "api"} {
		rr := f.do("POST", "/v1/admin/accounts", key, CreateAccountRequest{Name: "clinic"})
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("key %q: got %d, want 401", key, rr.Code)
		}
	}
}

func TestSearch_RequiresAPIKey(t *testing.T) {
	f := newFixture(t)
	rr := f.do("POST", "/v1/search", "admin", tooluc.Args{}, AgentHeader, "agent-1")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rr.Code)
	}
}

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)
	rr := f.do("POST", "/v1/admin/accounts", "admin", CreateAccountRequest{Name: "clinic"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var body AccountResponse
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if body.Name != "clinic" || body.ID == "" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestCreateAccount_Conflict(t *testing.T) {
	f := newFixture(t)
	f.catalog.err = fmt.Errorf("account clinic: %w", domain.ErrAlreadyExists)
	rr := f.do("POST", "/v1/admin/accounts", "admin", CreateAccountRequest{Name: "clinic"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != codeAlreadyExists || e.Message != "already exists" {
		t.Errorf("unexpected error: %+v", e)
	}
}

func TestCreateAccount_UnknownBodyField(t *testing.T) {
	f := newFixture(t)
	rr := f.do("POST", "/v1/admin/accounts", "admin", map[string]any{"name": "clinic", "plan": "gold"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rr.Code)
	}
}

func TestCreateList(t *testing.T) {
	f := newFixture(t)
	rr := f.do("POST", "/v1/admin/accounts/clinic/lists", "admin", CreateListRequest{
		Name:       "nurses",
		RecordType: "nurse",
		Fields: []FieldDTO{
			{Name: "languages", Kind: "array"},
			{Name: "city", Kind: "payload", Path: "address.city", Display: true},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d, want 201: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/v1/admin/accounts/clinic/lists/nurses" {
		t.Errorf("Location = %q", loc)
	}
	if len(f.catalog.lastFields) != 2 || f.catalog.lastFields[1].PathString() != "address.city" {
		t.Errorf("fields not converted: %+v", f.catalog.lastFields)
	}
}

func TestCreateList_InvalidField(t *testing.T) {
	f := newFixture(t)
	rr := f.do("POST", "/v1/admin/accounts/clinic/lists", "admin", CreateListRequest{
		Name: "nurses", RecordType: "nurse",
		Fields: []FieldDTO{{Name: "price", Kind: "numeric"}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != codeValidationFailed {
		t.Errorf("unexpected error: %+v", e)
	}
}

func TestGetAndDeleteList(t *testing.T) {
	f := newFixture(t)
	if rr := f.do("GET", "/v1/admin/accounts/clinic/lists/doctors", "admin", nil); rr.Code != http.StatusOK {
		t.Errorf("get: got %d, want 200", rr.Code)
	}
	if rr := f.do("GET", "/v1/admin/accounts/clinic/lists/ghosts", "admin", nil); rr.Code != http.StatusNotFound {
		t.Errorf("get missing: got %d, want 404", rr.Code)
	}
	if rr := f.do("DELETE", "/v1/admin/accounts/clinic/lists/doctors", "admin", nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete: got %d, want 204", rr.Code)
	}
}

func TestUpsertRecord(t *testing.T) {
	f := newFixture(t)
	f.catalog.change = domrec.Change{Created: true, Changed: true}

	rr := f.do("PUT", "/v1/admin/accounts/clinic/lists/doctors/records/dr-1", "admin", UpsertRecordRequest{
		Name:    "Dr. A",
		Tags:    []string{"en"},
		Payload: map[string]any{"specialty": "cardiology"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var body UpsertRecordResponse
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if !body.Created || !body.Changed || body.Fingerprint == "" {
		t.Errorf("unexpected body: %+v", body)
	}
	if f.catalog.lastInput.ExternalID != "dr-1" {
		t.Errorf("external id = %q", f.catalog.lastInput.ExternalID)
	}
}

func TestUpsertRecord_Invalid(t *testing.T) {
	f := newFixture(t)
	rr := f.do("PUT", "/v1/admin/accounts/clinic/lists/doctors/records/dr-1", "admin", UpsertRecordRequest{Name: " "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rr.Code)
	}
	if e := decodeError(t, rr); !strings.Contains(e.Message, "name is required") {
		t.Errorf("validation detail must be returned: %+v", e)
	}
}

func TestGrants(t *testing.T) {
	f := newFixture(t)
	doctorsID := f.catalog.lists["doctors"].ID()

	rr := f.do("PUT", "/v1/admin/grants", "admin", GrantRequest{Agent: "bot", Account: "clinic", List: "doctors"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("grant: got %d, want 204", rr.Code)
	}
	if f.access.granted["bot"] != doctorsID {
		t.Errorf("grant used list id %q, want %q", f.access.granted["bot"], doctorsID)
	}

	rr = f.do("DELETE", "/v1/admin/grants", "admin", GrantRequest{Agent: "bot", Account: "clinic", List: "doctors"})
	if rr.Code != http.StatusNoContent || f.access.revoked["bot"] != doctorsID {
		t.Errorf("revoke: got %d, revoked %v", rr.Code, f.access.revoked)
	}

	rr = f.do("PUT", "/v1/admin/grants", "admin", GrantRequest{Agent: "bot", Account: "clinic", List: "ghosts"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown list: got %d, want 404", rr.Code)
	}

	rr = f.do("PUT", "/v1/admin/grants", "admin", GrantRequest{Agent: "bot"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing fields: got %d, want 400", rr.Code)
	}
}

func TestResync(t *testing.T) {
	f := newFixture(t)
	rr := f.do("POST", "/v1/admin/resync", "admin", ResyncRequest{Account: "clinic", List: "doctors"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("got %d, want 202", rr.Code)
	}
	if f.resync.lastListID != f.catalog.lists["doctors"].ID() {
		t.Errorf("resync list = %q", f.resync.lastListID)
	}
	var body ResyncResponse
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if body.Enqueued != 3 {
		t.Errorf("enqueued = %d", body.Enqueued)
	}

	rr = f.do("POST", "/v1/admin/resync", "admin", nil)
	if rr.Code != http.StatusAccepted || f.resync.lastListID != "" {
		t.Errorf("resync all: got %d, list %q", rr.Code, f.resync.lastListID)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	f.tool.resp = tooluc.Response{Mode: "hybrid", Count: 1, Results: []map[string]any{{"name": "Dr. A"}}}

	limit := 3
	rr := f.do("POST", "/v1/search", "api", tooluc.Args{
		Query: "heart", Filters: map[string]any{"languages": []string{"en"}}, Limit: &limit,
	}, AgentHeader, "agent-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if f.tool.lastAgent != "agent-1" || f.tool.lastArgs.Query != "heart" || *f.tool.lastArgs.Limit != 3 {
		t.Errorf("tool got agent %q args %+v", f.tool.lastAgent, f.tool.lastArgs)
	}
	var body tooluc.Response
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if body.Count != 1 || body.Results[0]["name"] != "Dr. A" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestSearch_MissingAgent(t *testing.T) {
	f := newFixture(t)
	if rr := f.do("POST", "/v1/search", "api", tooluc.Args{}); rr.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rr.Code)
	}
}

func TestSearch_ToolErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&tooluc.Error{Code: tooluc.CodeInvalidFilter, Message: `unknown filter field "age"`}, http.StatusBadRequest, "invalid_filter"},
		{&tooluc.Error{Code: tooluc.CodeTimeout, Message: "search timed out"}, http.StatusGatewayTimeout, "timeout"},
		{&tooluc.Error{Code: tooluc.CodeUnavailable, Message: "search temporarily unavailable"}, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := newFixture(t)
			f.tool.err = tt.err
			rr := f.do("POST", "/v1/search", "api", tooluc.Args{}, AgentHeader, "agent-1")
			if rr.Code != tt.status {
				t.Fatalf("got %d, want %d", rr.Code, tt.status)
			}
			if e := decodeError(t, rr); e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
		})
	}
}

func TestHandleDomainError_NoInternalLeak(t *testing.T) {
	f := newFixture(t)
	f.catalog.err = fmt.Errorf("%w: dial tcp 10.0.0.1:5432: connection refused", domain.ErrFatal)
	rr := f.do("POST", "/v1/admin/accounts", "admin", CreateAccountRequest{Name: "clinic"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", rr.Code)
	}
	if e := decodeError(t, rr); strings.Contains(e.Message, "10.0.0.1") {
		t.Errorf("internal detail leaked: %q", e.Message)
	}
}

func TestNotFoundRoute(t *testing.T) {
	f := newFixture(t)
	rr := f.do("GET", "/v2/nothing", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rr.Code)
	}
}
