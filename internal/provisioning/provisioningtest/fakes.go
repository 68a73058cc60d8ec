// Package provisioningtest provides in-memory fakes of the external systems
// touched by tenant provisioning and hard deletion.
package provisioningtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/plexica/plexica-sub002/internal/domain"
	"github.com/plexica/plexica-sub002/internal/provisioning"
)

// Journal records every external call, in order, across all fakes that share it.
type Journal struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{fail: map[string]error{}}
}

// FailOn makes the named operation (e.g. "CreateBucket") return err.
func (j *Journal) FailOn(op string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fail[op] = err
}

// Calls returns the recorded calls formatted as "Op(arg)".
func (j *Journal) Calls() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

// Count returns how many calls were recorded.
func (j *Journal) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.calls)
}

// Called reports whether op was invoked with arg.
func (j *Journal) Called(op, arg string) bool {
	want := fmt.Sprintf("%s(%s)", op, arg)
	for _, c := range j.Calls() {
		if c == want {
			return true
		}
	}
	return false
}

func (j *Journal) record(op, arg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, fmt.Sprintf("%s(%s)", op, arg))
	return j.fail[op]
}

// Identity is a fake domain.IdentityProvider.
type Identity struct {
	J *Journal

	mu     sync.Mutex
	realms map[string]bool
	users  map[string]string
}

var _ domain.IdentityProvider = (*Identity)(nil)

// NewIdentity returns an identity provider fake recording into j.
func NewIdentity(j *Journal) *Identity {
	return &Identity{J: j, realms: map[string]bool{}, users: map[string]string{}}
}

func (f *Identity) CreateRealm(_ context.Context, realm, _ string) error {
	if err := f.J.record("CreateRealm", realm); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.realms[realm] = true
	return nil
}

func (f *Identity) DeleteRealm(_ context.Context, realm string) error {
	if err := f.J.record("DeleteRealm", realm); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.realms, realm)
	return nil
}

func (f *Identity) ProvisionRealmClients(_ context.Context, realm string) error {
	return f.J.record("ProvisionRealmClients", realm)
}

func (f *Identity) ProvisionRealmRoles(_ context.Context, realm string) error {
	return f.J.record("ProvisionRealmRoles", realm)
}

func (f *Identity) CreateAdminUser(_ context.Context, realm, email, _ string) (string, error) {
	if err := f.J.record("CreateAdminUser", realm+"/"+email); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "user-" + realm
	f.users[id] = email
	return id, nil
}

func (f *Identity) DeleteUser(_ context.Context, realm, userID string) error {
	if err := f.J.record("DeleteUser", realm+"/"+userID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, userID)
	return nil
}

// HasRealm reports whether realm currently exists.
func (f *Identity) HasRealm(realm string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.realms[realm]
}

// Schemas is a fake domain.SchemaAdmin.
type Schemas struct{ J *Journal }

var _ domain.SchemaAdmin = (*Schemas)(nil)

func (f *Schemas) CreateSchema(_ context.Context, name string) error {
	return f.J.record("CreateSchema", name)
}

func (f *Schemas) DropSchema(_ context.Context, name string) error {
	return f.J.record("DropSchema", name)
}

// Storage is a fake domain.ObjectStorage.
type Storage struct{ J *Journal }

var _ domain.ObjectStorage = (*Storage)(nil)

func (f *Storage) CreateBucket(_ context.Context, name string) error {
	return f.J.record("CreateBucket", name)
}

func (f *Storage) RemoveBucket(_ context.Context, name string) error {
	return f.J.record("RemoveBucket", name)
}

// Invitations is a fake domain.InvitationSender.
type Invitations struct {
	J *Journal

	mu   sync.Mutex
	sent []domain.Invitation
}

var _ domain.InvitationSender = (*Invitations)(nil)

func (f *Invitations) SendInvitation(_ context.Context, inv domain.Invitation) error {
	if err := f.J.record("SendInvitation", inv.Email); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, inv)
	return nil
}

// Sent returns the invitations accepted so far.
func (f *Invitations) Sent() []domain.Invitation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Invitation(nil), f.sent...)
}

// Systems bundles one fake of each external system around a shared journal.
type Systems struct {
	Journal     *Journal
	Identity    *Identity
	Schemas     *Schemas
	Storage     *Storage
	Invitations *Invitations
}

// NewSystems returns fresh fakes sharing one journal.
func NewSystems() *Systems {
	j := NewJournal()
	return &Systems{
		Journal:     j,
		Identity:    NewIdentity(j),
		Schemas:     &Schemas{J: j},
		Storage:     &Storage{J: j},
		Invitations: &Invitations{J: j},
	}
}

// Dependencies wires the fakes into the standard provisioning plan.
func (s *Systems) Dependencies() provisioning.Dependencies {
	return provisioning.Dependencies{
		Identity:     s.Identity,
		Schemas:      s.Schemas,
		Storage:      s.Storage,
		Invitations:  s.Invitations,
		BucketPrefix: "tenant-",
	}
}
