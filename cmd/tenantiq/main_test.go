package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/plexica/plexica-sub002/internal/adapter/river"
	"github.com/plexica/plexica-sub002/internal/adapter/sqlite"
	"github.com/plexica/plexica-sub002/internal/config"
	"github.com/plexica/plexica-sub002/internal/domain"
	"github.com/plexica/plexica-sub002/internal/provisioning/provisioningtest"
)

// TestSmoke wires the stack like serve does, with fake external systems, and
// drives one tenant through the API.
func TestSmoke(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	db, rows, err := openStore(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client, err := river.Setup(ctx, db, river.Deps{Logger: logger})
	if err != nil {
		t.Fatalf("river.Setup: %v", err)
	}

	sys := provisioningtest.NewSystems()
	deps := sys.Dependencies()
	deleter, _ := newDeletion(rows, deps, time.Hour, logger)
	tenants, members := newServices(db, rows, deps, deleter, river.NewPublisher(client), config.ProvisioningConfig{
		StepTimeout:         5 * time.Second,
		CompensationTimeout: 5 * time.Second,
	}, logger)

	srv := httptest.NewServer(newRouter(tenants, members, logger))
	t.Cleanup(srv.Close)

	body := `{"slug":"acme-corp","name":"Acme Corp","admin_email":"admin@acme.test"}`
	resp, err := http.Post(srv.URL+"/api/v1/tenants", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/v1/tenants failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	resp, err = http.Get(srv.URL + "/api/v1/tenants")
	if err != nil {
		t.Fatalf("GET /api/v1/tenants failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var listed []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 1 || listed[0]["status"] != "ACTIVE" {
		t.Fatalf("tenants = %v, want one ACTIVE tenant", listed)
	}

	if len(sys.Invitations.Sent()) != 1 {
		t.Errorf("invitations sent = %d, want 1", len(sys.Invitations.Sent()))
	}

	var queued int
	if err := db.QueryRow(`SELECT count(*) FROM river_job WHERE kind = 'event.published'`).Scan(&queued); err != nil {
		t.Fatalf("counting jobs: %v", err)
	}
	if queued != 1 {
		t.Errorf("queued events = %d, want 1 (activate)", queued)
	}
}

func TestRootCommand_Help(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, name := range []string{"serve", "migrate", "purge", "--database-path"} {
		if !strings.Contains(out.String(), name) {
			t.Errorf("help output is missing %q:\n%s", name, out.String())
		}
	}
}

func TestMigrateCommand(t *testing.T) {
	path := t.TempDir() + "/migrate.db"

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "--database-path", path})

	if err := root.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out.String(), "migrations applied") {
		t.Errorf("output = %q", out.String())
	}

	repo, err := sqlite.New(path)
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if _, err := repo.List(context.Background(), domain.ListFilter{Limit: 10}); err != nil {
		t.Errorf("tenants table not usable: %v", err)
	}
	var jobs int
	if err := repo.DB().QueryRow(`SELECT count(*) FROM river_job`).Scan(&jobs); err != nil {
		t.Errorf("river tables missing: %v", err)
	}
}

// TestServe_InvalidDatabasePath verifies serve fails fast when the database
// cannot be opened.
func TestServe_InvalidDatabasePath(t *testing.T) {
	t.Setenv("OTEL_EXPORTER", "none")

	root := newRootCommand()
	root.SetArgs([]string{"serve", "--database-path", "/nonexistent/path/db.sqlite"})

	if err := root.Execute(); err == nil {
		t.Fatal("expected error for invalid database path, got nil")
	}
}

type fakePurger struct {
	purged []domain.Tenant
	err    error
}

func (f *fakePurger) Purge(context.Context, time.Time) ([]domain.Tenant, error) {
	return f.purged, f.err
}

type recordingPublisher struct {
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event, _ domain.Tenant) error {
	p.events = append(p.events, event)
	return nil
}

func TestRunPurge(t *testing.T) {
	boom := errors.New("bucket still in use")
	sweeper := &fakePurger{
		purged: []domain.Tenant{{ID: "t-1", Slug: "one"}, {ID: "t-2", Slug: "two"}},
		err:    boom,
	}
	publisher := &recordingPublisher{}
	var out bytes.Buffer

	err := runPurge(context.Background(), sweeper, publisher, &out, zaptest.NewLogger(t))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if got := out.String(); got != "purged 2 tenant(s)\n" {
		t.Errorf("output = %q", got)
	}
	if len(publisher.events) != 2 || publisher.events[0] != domain.EventPurge {
		t.Errorf("events = %v, want two purge events", publisher.events)
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := requestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/tenants", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status = %v, want %d", fields["status"], http.StatusTeapot)
	}
	if fields["path"] != "/api/v1/tenants" || fields["method"] != http.MethodGet {
		t.Errorf("fields = %v", fields)
	}
}
