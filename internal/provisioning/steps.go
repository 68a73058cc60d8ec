package provisioning

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// Step names, in the order Plan declares them.
const (
	StepCreateSchema    = "create-schema"
	StepCreateRealm     = "create-identity-realm"
	StepRealmClients    = "provision-identity-clients"
	StepRealmRoles      = "provision-identity-roles"
	StepCreateBucket    = "create-storage-bucket"
	StepCreateAdminUser = "create-administrator-user"
	StepSendInvitation  = "send-invitation"
)

const passwordAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789!@#%*-_"

var errNoRealm = errors.New("identity realm has not been created")

// Dependencies are the external systems the standard plan talks to.
type Dependencies struct {
	Identity     domain.IdentityProvider
	Schemas      domain.SchemaAdmin
	Storage      domain.ObjectStorage
	Invitations  domain.InvitationSender
	BucketPrefix string
}

// Plan returns the standard tenant provisioning steps.
func Plan(deps Dependencies) []Step {
	return []Step{
		&SchemaStep{admin: deps.Schemas},
		&RealmStep{idp: deps.Identity},
		&RealmClientsStep{idp: deps.Identity},
		&RealmRolesStep{idp: deps.Identity},
		&BucketStep{storage: deps.Storage, prefix: deps.BucketPrefix},
		&AdminUserStep{idp: deps.Identity},
		&InvitationStep{sender: deps.Invitations},
	}
}

// SchemaStep creates the tenant's database schema.
type SchemaStep struct {
	admin domain.SchemaAdmin
}

func (s *SchemaStep) Name() string { return StepCreateSchema }

func (s *SchemaStep) Forward(ctx context.Context, pc *Context) (any, error) {
	name := domain.SchemaName(pc.Slug)
	if err := s.admin.CreateSchema(ctx, name); err != nil {
		return nil, fmt.Errorf("creating schema %s: %w", name, err)
	}
	pc.Schema = name
	return name, nil
}

func (s *SchemaStep) Compensate(ctx context.Context, _ *Context, result any) error {
	name, _ := result.(string)
	return s.admin.DropSchema(ctx, name)
}

// RealmStep creates the tenant's identity realm.
type RealmStep struct {
	idp domain.IdentityProvider
}

func (s *RealmStep) Name() string { return StepCreateRealm }

func (s *RealmStep) Forward(ctx context.Context, pc *Context) (any, error) {
	realm := domain.RealmName(pc.Slug)
	if err := s.idp.CreateRealm(ctx, realm, pc.DisplayName); err != nil {
		return nil, fmt.Errorf("creating realm %s: %w", realm, err)
	}
	pc.Realm = realm
	return realm, nil
}

func (s *RealmStep) Compensate(ctx context.Context, _ *Context, result any) error {
	realm, _ := result.(string)
	return s.idp.DeleteRealm(ctx, realm)
}

// RealmClientsStep registers the platform's clients in the tenant realm.
// Its effect lives inside the realm, so deleting the realm undoes it.
type RealmClientsStep struct {
	idp domain.IdentityProvider
}

func (s *RealmClientsStep) Name() string { return StepRealmClients }

func (s *RealmClientsStep) Forward(ctx context.Context, pc *Context) (any, error) {
	if pc.Realm == "" {
		return nil, errNoRealm
	}
	if err := s.idp.ProvisionRealmClients(ctx, pc.Realm); err != nil {
		return nil, fmt.Errorf("provisioning clients in %s: %w", pc.Realm, err)
	}
	return pc.Realm, nil
}

func (s *RealmClientsStep) Compensate(context.Context, *Context, any) error { return nil }

// RealmRolesStep creates the platform's roles in the tenant realm.
type RealmRolesStep struct {
	idp domain.IdentityProvider
}

func (s *RealmRolesStep) Name() string { return StepRealmRoles }

func (s *RealmRolesStep) Forward(ctx context.Context, pc *Context) (any, error) {
	if pc.Realm == "" {
		return nil, errNoRealm
	}
	if err := s.idp.ProvisionRealmRoles(ctx, pc.Realm); err != nil {
		return nil, fmt.Errorf("provisioning roles in %s: %w", pc.Realm, err)
	}
	return pc.Realm, nil
}

func (s *RealmRolesStep) Compensate(context.Context, *Context, any) error { return nil }

// BucketStep creates the tenant's object storage bucket.
type BucketStep struct {
	storage domain.ObjectStorage
	prefix  string
}

func (s *BucketStep) Name() string { return StepCreateBucket }

func (s *BucketStep) Forward(ctx context.Context, pc *Context) (any, error) {
	name := domain.BucketName(s.prefix, pc.Slug)
	if err := s.storage.CreateBucket(ctx, name); err != nil {
		return nil, fmt.Errorf("creating bucket %s: %w", name, err)
	}
	pc.Bucket = name
	return name, nil
}

func (s *BucketStep) Compensate(ctx context.Context, _ *Context, result any) error {
	name, _ := result.(string)
	return s.storage.RemoveBucket(ctx, name)
}

// AdminUserStep creates the tenant's first administrator in its realm. The
// temporary password is random and never leaves this step; the user sets a
// real one through the invitation flow.
type AdminUserStep struct {
	idp domain.IdentityProvider
}

func (s *AdminUserStep) Name() string { return StepCreateAdminUser }

type adminUserResult struct {
	Realm  string
	UserID string
}

func (s *AdminUserStep) Forward(ctx context.Context, pc *Context) (any, error) {
	if pc.Realm == "" {
		return nil, errNoRealm
	}
	password, err := gonanoid.Generate(passwordAlphabet, 24)
	if err != nil {
		return nil, fmt.Errorf("generating temporary password: %w", err)
	}
	userID, err := s.idp.CreateAdminUser(ctx, pc.Realm, pc.AdminEmail, password)
	if err != nil {
		return nil, fmt.Errorf("creating admin user %s: %w", pc.AdminEmail, err)
	}
	pc.AdminUserID = userID
	return adminUserResult{Realm: pc.Realm, UserID: userID}, nil
}

func (s *AdminUserStep) Compensate(ctx context.Context, _ *Context, result any) error {
	r, ok := result.(adminUserResult)
	if !ok {
		return nil
	}
	return s.idp.DeleteUser(ctx, r.Realm, r.UserID)
}

// InvitationStep hands the administrator invitation to the sender and records
// the token's digest for redemption. It is best-effort: a failure never aborts
// provisioning.
type InvitationStep struct {
	sender domain.InvitationSender
}

func (s *InvitationStep) Name() string   { return StepSendInvitation }
func (s *InvitationStep) Optional() bool { return true }

func (s *InvitationStep) Forward(ctx context.Context, pc *Context) (any, error) {
	token, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generating invitation token: %w", err)
	}
	err = s.sender.SendInvitation(ctx, domain.Invitation{
		TenantID:   pc.TenantID,
		TenantSlug: pc.Slug,
		TenantName: pc.DisplayName,
		Email:      pc.AdminEmail,
		Token:      token,
	})
	if err != nil {
		return nil, fmt.Errorf("sending invitation to %s: %w", pc.AdminEmail, err)
	}
	pc.InvitationDigest = domain.InvitationDigest(token)
	return nil, nil
}

func (s *InvitationStep) Compensate(context.Context, *Context, any) error { return nil }
