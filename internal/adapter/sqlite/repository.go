package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"

	"github.com/plexica/plexica-sub002/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ domain.TenantRepository = (*TenantRepository)(nil)

// TenantRepository implements domain.TenantRepository using SQLite.
type TenantRepository struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready repository.
func New(dataSourceName string) (*TenantRepository, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: an in-memory database is per connection, and writers
	// serialize here instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready repository.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*TenantRepository, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}

	return &TenantRepository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *TenantRepository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (r *TenantRepository) DB() *sql.DB {
	return r.db
}

// Migrate applies all pending schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05.000Z"

var tenantColumns = []string{
	"id", "name", "slug", "status", "settings", "theme",
	"deletion_scheduled_at", "created_at", "updated_at",
}

// Create inserts a tenant. The unique index on slug is the only arbiter of
// slug ownership: a violation surfaces as *domain.ConflictError.
func (r *TenantRepository) Create(ctx context.Context, t domain.Tenant) error {
	settings, theme, err := encodeBags(t)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, slug, status, settings, theme, deletion_scheduled_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Slug, string(t.Status), settings, theme,
		formatNullTime(t.DeletionScheduledAt),
		t.CreatedAt.UTC().Format(timeFormat),
		t.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{Resource: "tenant", Key: t.Slug}
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	return r.getOne(ctx, sq.Eq{"slug": slug})
}

func (r *TenantRepository) getOne(ctx context.Context, pred sq.Eq) (domain.Tenant, error) {
	query, args, err := sq.Select(tenantColumns...).From("tenants").Where(pred).ToSql()
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("building tenant query: %w", err)
	}

	t, err := scanTenant(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, err
}

func (r *TenantRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	q := sq.Select(tenantColumns...).From("tenants").OrderBy("created_at DESC", "id")

	if filter.Status != nil {
		q = q.Where(sq.Eq{"status": string(*filter.Status)})
	}
	if filter.DeletionDueBefore != nil {
		q = q.Where(sq.Eq{"status": string(domain.StatusPendingDeletion)}).
			Where(sq.LtOrEq{"deletion_scheduled_at": filter.DeletionDueBefore.UTC().Format(timeFormat)})
	}

	switch {
	case filter.Limit > 0:
		q = q.Limit(uint64(filter.Limit))
	case filter.Offset > 0:
		// SQLite rejects OFFSET without LIMIT.
		q = q.Limit(math.MaxInt64)
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	tenants := []domain.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

// Update writes t only while the stored status still equals expected, so two
// writers racing on the same transition cannot both succeed. t.UpdatedAt is
// stored as given; a zero value is stamped with the current time.
func (r *TenantRepository) Update(ctx context.Context, t domain.Tenant, expected domain.Status) error {
	settings, theme, err := encodeBags(t)
	if err != nil {
		return err
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants
		 SET name = ?, status = ?, settings = ?, theme = ?, deletion_scheduled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		t.Name, string(t.Status), settings, theme,
		formatNullTime(t.DeletionScheduledAt),
		t.UpdatedAt.UTC().Format(timeFormat),
		t.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("updating tenant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, t.ID); err != nil {
		return err
	}
	return domain.ErrConcurrentUpdate
}

// Delete removes the tenant row. Workspaces and members cascade.
func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (domain.Tenant, error) {
	var t domain.Tenant
	var status, settings, theme, createdAt, updatedAt string
	var deletionAt sql.NullString

	err := row.Scan(&t.ID, &t.Name, &t.Slug, &status, &settings, &theme, &deletionAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tenant{}, err
		}
		return domain.Tenant{}, fmt.Errorf("scanning tenant: %w", err)
	}

	t.Status = domain.Status(status)
	if err := json.Unmarshal([]byte(settings), &t.Settings); err != nil {
		return domain.Tenant{}, fmt.Errorf("decoding settings of tenant %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(theme), &t.Theme); err != nil {
		return domain.Tenant{}, fmt.Errorf("decoding theme of tenant %s: %w", t.ID, err)
	}
	if t.Settings == nil {
		t.Settings = map[string]any{}
	}
	if t.Theme == nil {
		t.Theme = map[string]any{}
	}
	if deletionAt.Valid {
		at, err := parseTime("deletion_scheduled_at", deletionAt.String)
		if err != nil {
			return domain.Tenant{}, fmt.Errorf("scanning tenant %s: %w", t.ID, err)
		}
		t.DeletionScheduledAt = &at
	}
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return domain.Tenant{}, fmt.Errorf("scanning tenant %s: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return domain.Tenant{}, fmt.Errorf("scanning tenant %s: %w", t.ID, err)
	}

	return t, nil
}

func parseTime(column, value string) (time.Time, error) {
	at, err := time.Parse(timeFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s %q: %w", column, value, err)
	}
	return at, nil
}

func encodeBags(t domain.Tenant) (settings, theme string, err error) {
	s, err := encodeBag(t.Settings)
	if err != nil {
		return "", "", fmt.Errorf("encoding settings: %w", err)
	}
	th, err := encodeBag(t.Theme)
	if err != nil {
		return "", "", fmt.Errorf("encoding theme: %w", err)
	}
	return s, th, nil
}

func encodeBag(bag map[string]any) (string, error) {
	if bag == nil {
		return "{}", nil
	}
	b, err := json.Marshal(bag)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE or PRIMARY KEY constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation checks if a SQLite error is a FOREIGN KEY constraint violation.
func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
