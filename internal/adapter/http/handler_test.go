package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"github.com/plexica/plexica-sub002/internal/adapter/fsm"
	adapter "github.com/plexica/plexica-sub002/internal/adapter/http"
	"github.com/plexica/plexica-sub002/internal/adapter/sqlite"
	"github.com/plexica/plexica-sub002/internal/app"
	"github.com/plexica/plexica-sub002/internal/domain"
	"github.com/plexica/plexica-sub002/internal/provisioning"
	"github.com/plexica/plexica-sub002/internal/provisioning/provisioningtest"
)

// noopPublisher is a no-op EventPublisher for tests.
type noopPublisher struct{}

func (p *noopPublisher) Publish(_ context.Context, _ domain.Event, _ domain.Tenant) error {
	return nil
}

type testServer struct {
	*httptest.Server
	sys *provisioningtest.Systems
}

// newTestServer creates a full-stack httptest.Server with SQLite in-memory
// and fake external systems.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := zaptest.NewLogger(t)
	sys := provisioningtest.NewSystems()
	runner := provisioning.NewRunner(provisioning.NewOrchestrator(logger), provisioning.Plan(sys.Dependencies()))
	deleter := app.NewHardDeletionCoordinator(repo, sys.Identity, sys.Schemas, sys.Storage, "tenant-", logger)

	tenants := app.NewTenantService(repo, &noopPublisher{}, fsm.New(), runner, deleter, logger)
	members := app.NewMembershipService(sqlite.NewWorkspaceRepository(repo.DB()), logger)

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("tenantiq", "0.1.0"))
	adapter.Register(api, tenants)
	adapter.RegisterWorkspaces(api, members)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, sys: sys}
}

// doRequest performs an HTTP request with context (avoids noctx linter).
func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// expectError checks the status and the domain code carried in the error details.
func expectError(t *testing.T, resp *http.Response, status int, code domain.Code) {
	t.Helper()

	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d", resp.StatusCode, status)
	}
	model := decode[huma.ErrorModel](t, resp)
	for _, d := range model.Errors {
		if d.Location == "code" {
			if d.Value != string(code) {
				t.Errorf("code = %v, want %q", d.Value, code)
			}
			return
		}
	}
	t.Errorf("error body has no code detail: %+v", model)
}

// mustCreateTenant creates a tenant via the API and returns its response.
func mustCreateTenant(t *testing.T, srv *testServer, name, slug string) adapter.TenantResponse {
	t.Helper()

	body := fmt.Sprintf(`{"name":%q,"slug":%q,"admin_email":"admin@%s.test"}`, name, slug, slug)
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create tenant: status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	return decode[adapter.TenantResponse](t, resp)
}

// --- Create ---

func TestCreate(t *testing.T) {
	srv := newTestServer(t)
	tenant := mustCreateTenant(t, srv, "Acme Corp", "acme-corp")

	if tenant.ID == "" {
		t.Error("ID should not be empty")
	}
	if tenant.Name != "Acme Corp" {
		t.Errorf("Name = %q, want %q", tenant.Name, "Acme Corp")
	}
	if tenant.Slug != "acme-corp" {
		t.Errorf("Slug = %q, want %q", tenant.Slug, "acme-corp")
	}
	if tenant.Status != "ACTIVE" {
		t.Errorf("Status = %q, want %q", tenant.Status, "ACTIVE")
	}
	if tenant.Settings["database_schema"] != "tenant_acme_corp" {
		t.Errorf("settings[database_schema] = %v, want tenant_acme_corp", tenant.Settings["database_schema"])
	}
	if got := strings.Join(tenant.AvailableActions, ","); got != "delete,suspend" {
		t.Errorf("AvailableActions = %q, want %q", got, "delete,suspend")
	}
	if tenant.CreatedAt == "" {
		t.Error("CreatedAt should not be empty")
	}
}

func TestCreate_DuplicateSlug(t *testing.T) {
	srv := newTestServer(t)
	mustCreateTenant(t, srv, "Acme", "acme")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants", `{"name":"Acme 2","slug":"acme","admin_email":"b@acme.test"}`)
	defer resp.Body.Close()

	expectError(t, resp, http.StatusConflict, domain.CodeConflict)
}

func TestCreate_InvalidSlug(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants", `{"name":"Acme","slug":"INVALID SLUG!","admin_email":"a@acme.test"}`)
	defer resp.Body.Close()

	expectError(t, resp, http.StatusUnprocessableEntity, domain.CodeValidation)
	if srv.sys.Journal.Count() != 0 {
		t.Errorf("invalid input reached external systems: %v", srv.sys.Journal.Calls())
	}
}

func TestCreate_MissingName(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants", `{"slug":"acme","admin_email":"a@acme.test"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreate_ProvisioningFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.sys.Journal.FailOn("CreateBucket", errors.New("quota exceeded"))

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants", `{"name":"Acme","slug":"acme","admin_email":"a@acme.test"}`)
	defer resp.Body.Close()

	expectError(t, resp, http.StatusBadGateway, domain.CodeProvisioning)

	// The tenant is kept, suspended, for inspection.
	list := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants?status=SUSPENDED", "")
	defer list.Body.Close()
	if tenants := decode[[]adapter.TenantResponse](t, list); len(tenants) != 1 {
		t.Errorf("got %d suspended tenants, want 1", len(tenants))
	}
}

// --- Get ---

func TestGet(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateTenant(t, srv, "Acme", "acme")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants/"+created.ID, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	tenant := decode[adapter.TenantResponse](t, resp)
	if tenant.ID != created.ID {
		t.Errorf("ID = %q, want %q", tenant.ID, created.ID)
	}
	if tenant.Name != "Acme" {
		t.Errorf("Name = %q, want %q", tenant.Name, "Acme")
	}
}

func TestGet_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants/nonexistent", "")
	defer resp.Body.Close()

	expectError(t, resp, http.StatusNotFound, domain.CodeNotFound)
}

// --- List ---

func TestList(t *testing.T) {
	srv := newTestServer(t)
	mustCreateTenant(t, srv, "Acme", "acme")
	mustCreateTenant(t, srv, "Globex", "globex")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if tenants := decode[[]adapter.TenantResponse](t, resp); len(tenants) != 2 {
		t.Errorf("got %d tenants, want 2", len(tenants))
	}
}

func TestList_FilterByStatus(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateTenant(t, srv, "Acme", "acme")
	mustCreateTenant(t, srv, "Globex", "globex")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+created.ID+"/suspend", "")
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants?status=SUSPENDED", "")
	defer resp.Body.Close()

	tenants := decode[[]adapter.TenantResponse](t, resp)
	if len(tenants) != 1 {
		t.Fatalf("got %d tenants, want 1", len(tenants))
	}
	if tenants[0].Status != "SUSPENDED" {
		t.Errorf("Status = %q, want %q", tenants[0].Status, "SUSPENDED")
	}
}

// --- Update ---

func TestUpdate_PartialPatch(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateTenant(t, srv, "Acme", "acme")

	resp := doRequest(t, http.MethodPatch, srv.URL+"/api/v1/tenants/"+created.ID, `{"theme":{"color":"#ff0000"}}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	tenant := decode[adapter.TenantResponse](t, resp)
	if tenant.Name != "Acme" {
		t.Errorf("Name = %q, omitted field must be untouched", tenant.Name)
	}
	if tenant.Theme["color"] != "#ff0000" {
		t.Errorf("theme = %v", tenant.Theme)
	}
	if tenant.Slug != "acme" {
		t.Errorf("Slug = %q, must not change", tenant.Slug)
	}
}

func TestUpdate_EmptyName(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateTenant(t, srv, "Acme", "acme")

	resp := doRequest(t, http.MethodPatch, srv.URL+"/api/v1/tenants/"+created.ID, `{"name":""}`)
	defer resp.Body.Close()

	expectError(t, resp, http.StatusUnprocessableEntity, domain.CodeValidation)
}

// --- Lifecycle ---

func TestSuspendAndReactivate(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateTenant(t, srv, "Acme", "acme")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+created.ID+"/suspend", "")
	defer resp.Body.Close()
	if tenant := decode[adapter.TenantResponse](t, resp); tenant.Status != "SUSPENDED" {
		t.Fatalf("Status = %q, want SUSPENDED", tenant.Status)
	}

	resp2 := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+created.ID+"/reactivate", "")
	defer resp2.Body.Close()
	if tenant := decode[adapter.TenantResponse](t, resp2); tenant.Status != "ACTIVE" {
		t.Errorf("Status = %q, want ACTIVE", tenant.Status)
	}
}

func TestReactivate_InvalidState(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateTenant(t, srv, "Acme", "acme")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+created.ID+"/reactivate", "")
	defer resp.Body.Close()

	expectError(t, resp, http.StatusConflict, domain.CodeInvalidState)
}

func TestSoftDelete(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateTenant(t, srv, "Acme", "acme")

	resp := doRequest(t, http.MethodDelete, srv.URL+"/api/v1/tenants/"+created.ID, "")
	defer resp.Body.Close()

	tenant := decode[adapter.TenantResponse](t, resp)
	if tenant.Status != "PENDING_DELETION" {
		t.Errorf("Status = %q, want PENDING_DELETION", tenant.Status)
	}
	if tenant.DeletionScheduledAt == nil {
		t.Error("DeletionScheduledAt should be set")
	}

	again := doRequest(t, http.MethodDelete, srv.URL+"/api/v1/tenants/"+created.ID, "")
	defer again.Body.Close()
	expectError(t, again, http.StatusConflict, domain.CodeInvalidState)
}

func TestTransition_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/nonexistent/suspend", "")
	defer resp.Body.Close()

	expectError(t, resp, http.StatusNotFound, domain.CodeNotFound)
}

// --- Purge ---

func TestPurge_FreesSlug(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateTenant(t, srv, "Acme", "acme")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+created.ID+"/purge", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	rep := decode[adapter.DeletionResponse](t, resp)
	if rep.Schema != "tenant_acme" || rep.Bucket != "tenant-acme" || rep.Realm != "acme" {
		t.Errorf("report = %+v", rep)
	}

	get := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants/"+created.ID, "")
	get.Body.Close()
	if get.StatusCode != http.StatusNotFound {
		t.Errorf("after purge: status = %d, want 404", get.StatusCode)
	}

	mustCreateTenant(t, srv, "Acme again", "acme")
}

func TestPurge_BucketFailureIsReported(t *testing.T) {
	srv := newTestServer(t)
	created := mustCreateTenant(t, srv, "Acme", "acme")
	srv.sys.Journal.FailOn("RemoveBucket", errors.New("access denied"))

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+created.ID+"/purge", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if rep := decode[adapter.DeletionResponse](t, resp); !strings.Contains(rep.BucketError, "access denied") {
		t.Errorf("BucketError = %q", rep.BucketError)
	}
}

// --- Slug availability ---

func TestCheckSlug(t *testing.T) {
	srv := newTestServer(t)
	mustCreateTenant(t, srv, "Acme", "acme")

	tests := []struct {
		slug             string
		valid, available bool
	}{
		{"acme", true, false},
		{"globex", true, true},
		{"Bad_Slug", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/slugs/"+tt.slug, "")
			defer resp.Body.Close()

			got := decode[struct {
				Valid     bool `json:"valid"`
				Available bool `json:"available"`
			}](t, resp)
			if got.Valid != tt.valid || got.Available != tt.available {
				t.Errorf("got valid=%v available=%v, want %v %v", got.Valid, got.Available, tt.valid, tt.available)
			}
		})
	}
}
