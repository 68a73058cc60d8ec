package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/plexica/plexica-sub002/internal/domain"
)

var _ domain.WorkspaceRepository = (*WorkspaceRepository)(nil)

// WorkspaceRepository implements domain.WorkspaceRepository using SQLite.
// It shares the tenant database; migrations are run by New / NewFromDB.
type WorkspaceRepository struct {
	db *sql.DB
}

// NewWorkspaceRepository returns a repository over an already migrated database.
func NewWorkspaceRepository(db *sql.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

func (r *WorkspaceRepository) CreateWorkspace(ctx context.Context, ws domain.Workspace, owner domain.WorkspaceMember) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workspaces (id, tenant_id, slug, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		ws.ID, ws.TenantID, ws.Slug, ws.Name, ws.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return &domain.ConflictError{Resource: "workspace", Key: ws.Slug}
		case isForeignKeyViolation(err):
			return domain.ErrTenantNotFound
		}
		return fmt.Errorf("inserting workspace: %w", err)
	}

	if err := insertMember(ctx, tx, owner); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing workspace: %w", err)
	}
	return nil
}

func (r *WorkspaceRepository) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	var ws domain.Workspace
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, slug, name, created_at FROM workspaces WHERE id = ?`, id,
	).Scan(&ws.ID, &ws.TenantID, &ws.Slug, &ws.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Workspace{}, domain.ErrWorkspaceNotFound
		}
		return domain.Workspace{}, fmt.Errorf("scanning workspace: %w", err)
	}

	if ws.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return domain.Workspace{}, fmt.Errorf("scanning workspace %s: %w", ws.ID, err)
	}
	return ws, nil
}

func (r *WorkspaceRepository) AddMember(ctx context.Context, m domain.WorkspaceMember) error {
	return insertMember(ctx, r.db, m)
}

func (r *WorkspaceRepository) ListMembers(ctx context.Context, workspaceID string) ([]domain.WorkspaceMember, error) {
	if _, err := r.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	return listMembers(ctx, r.db, workspaceID)
}

// MutateMember runs load, check and write inside one transaction. The first
// statement is a write, which takes SQLite's database lock before the member
// set is read; concurrent mutations therefore see each other's results.
func (r *WorkspaceRepository) MutateMember(
	ctx context.Context,
	workspaceID string,
	change domain.MemberChange,
	check func(members []domain.WorkspaceMember) error,
) (domain.WorkspaceMember, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkspaceMember{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE workspaces SET id = id WHERE id = ?`, workspaceID)
	if err != nil {
		return domain.WorkspaceMember{}, fmt.Errorf("locking workspace: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.WorkspaceMember{}, fmt.Errorf("checking rows affected: %w", err)
	} else if n == 0 {
		return domain.WorkspaceMember{}, domain.ErrWorkspaceNotFound
	}

	members, err := listMembers(ctx, tx, workspaceID)
	if err != nil {
		return domain.WorkspaceMember{}, err
	}

	if check != nil {
		if err := check(members); err != nil {
			return domain.WorkspaceMember{}, err
		}
	}

	var target *domain.WorkspaceMember
	for i := range members {
		if members[i].UserID == change.UserID {
			target = &members[i]
			break
		}
	}
	if target == nil {
		return domain.WorkspaceMember{}, domain.ErrMemberNotFound
	}

	if change.Removal() {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM workspace_members WHERE workspace_id = ? AND user_id = ?`,
			workspaceID, change.UserID)
	} else {
		target.Role = *change.Role
		_, err = tx.ExecContext(ctx,
			`UPDATE workspace_members SET role = ? WHERE workspace_id = ? AND user_id = ?`,
			string(*change.Role), workspaceID, change.UserID)
	}
	if err != nil {
		return domain.WorkspaceMember{}, fmt.Errorf("mutating member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.WorkspaceMember{}, fmt.Errorf("committing member change: %w", err)
	}
	return *target, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func insertMember(ctx context.Context, db execer, m domain.WorkspaceMember) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role, invited_by, joined_at) VALUES (?, ?, ?, ?, ?)`,
		m.WorkspaceID, m.UserID, string(m.Role), m.InvitedBy, m.JoinedAt.UTC().Format(timeFormat),
	)
	if err == nil {
		return nil
	}
	switch {
	case isUniqueViolation(err):
		return &domain.ConflictError{Resource: "workspace member", Key: m.UserID}
	case isForeignKeyViolation(err):
		return domain.ErrWorkspaceNotFound
	}
	return fmt.Errorf("inserting member: %w", err)
}

func listMembers(ctx context.Context, db querier, workspaceID string) ([]domain.WorkspaceMember, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT workspace_id, user_id, role, invited_by, joined_at
		 FROM workspace_members WHERE workspace_id = ? ORDER BY joined_at, user_id`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	members := []domain.WorkspaceMember{}
	for rows.Next() {
		var m domain.WorkspaceMember
		var role, joinedAt string
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &role, &m.InvitedBy, &joinedAt); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		m.Role = domain.Role(role)
		if m.JoinedAt, err = parseTime("joined_at", joinedAt); err != nil {
			return nil, fmt.Errorf("scanning member %s: %w", m.UserID, err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
