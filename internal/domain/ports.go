package domain

import "context"

// TenantRepository defines the persistence contract for tenants.
// Create must translate a slug uniqueness violation into a *ConflictError.
type TenantRepository interface {
	Create(ctx context.Context, tenant Tenant) error
	GetByID(ctx context.Context, id string) (Tenant, error)
	GetBySlug(ctx context.Context, slug string) (Tenant, error)
	List(ctx context.Context, filter ListFilter) ([]Tenant, error)
	// Update writes tenant only if the stored status still equals expected.
	// It returns ErrTenantNotFound or ErrConcurrentUpdate otherwise.
	Update(ctx context.Context, tenant Tenant, expected Status) error
	Delete(ctx context.Context, id string) error
}

// WorkspaceRepository defines the persistence contract for workspaces and
// their members.
type WorkspaceRepository interface {
	// CreateWorkspace inserts the workspace and its first member atomically.
	CreateWorkspace(ctx context.Context, ws Workspace, owner WorkspaceMember) error
	GetWorkspace(ctx context.Context, id string) (Workspace, error)
	AddMember(ctx context.Context, member WorkspaceMember) error
	ListMembers(ctx context.Context, workspaceID string) ([]WorkspaceMember, error)
	// MutateMember loads the full member set, calls check, and applies change
	// only if check returns nil. The whole sequence is one atomic unit.
	MutateMember(ctx context.Context, workspaceID string, change MemberChange,
		check func(members []WorkspaceMember) error) (WorkspaceMember, error)
}

// TransitionValidator resolves lifecycle events against the state machine.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
	// Available lists the events accepted from current.
	Available(current Status) []Event
}

// EventPublisher defines the contract for emitting domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, tenant Tenant) error
}

// IdentityProvider administers per-tenant identity realms.
type IdentityProvider interface {
	CreateRealm(ctx context.Context, realm, displayName string) error
	DeleteRealm(ctx context.Context, realm string) error
	ProvisionRealmClients(ctx context.Context, realm string) error
	ProvisionRealmRoles(ctx context.Context, realm string) error
	// CreateAdminUser creates an administrator in realm and returns its user id.
	CreateAdminUser(ctx context.Context, realm, email, temporaryPassword string) (string, error)
	DeleteUser(ctx context.Context, realm, userID string) error
}

// SchemaAdmin runs administrative DDL against the tenant database.
type SchemaAdmin interface {
	CreateSchema(ctx context.Context, name string) error
	DropSchema(ctx context.Context, name string) error
}

// ObjectStorage administers per-tenant buckets.
type ObjectStorage interface {
	CreateBucket(ctx context.Context, name string) error
	// RemoveBucket deletes every object in the bucket and then the bucket.
	RemoveBucket(ctx context.Context, name string) error
}

// Invitation is the payload handed to an InvitationSender.
type Invitation struct {
	TenantID   string
	TenantSlug string
	TenantName string
	Email      string
	Token      string
}

// InvitationSender delivers an invitation. Delivery is fire-and-forget from
// the caller's point of view.
type InvitationSender interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}
