package domain

import (
	"regexp"
	"time"
)

// Status represents the lifecycle state of a tenant.
type Status string

const (
	StatusProvisioning    Status = "PROVISIONING"
	StatusActive          Status = "ACTIVE"
	StatusSuspended       Status = "SUSPENDED"
	StatusPendingDeletion Status = "PENDING_DELETION"
)

// Event represents an action that triggers a state transition.
type Event string

const (
	EventActivate   Event = "activate"
	EventFail       Event = "fail"
	EventSuspend    Event = "suspend"
	EventReactivate Event = "reactivate"
	EventDelete     Event = "delete"

	// EventPurge is published after a hard delete. It is not a transition:
	// hard deletion is allowed from any state and removes the row.
	EventPurge Event = "purge"
)

// Transition defines a valid state change: an event moves a tenant from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the tenant lifecycle.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{Event: EventActivate, Src: StatusProvisioning, Dst: StatusActive},
	{Event: EventFail, Src: StatusProvisioning, Dst: StatusSuspended},
	{Event: EventSuspend, Src: StatusActive, Dst: StatusSuspended},
	{Event: EventReactivate, Src: StatusSuspended, Dst: StatusActive},
	{Event: EventDelete, Src: StatusActive, Dst: StatusPendingDeletion},
	{Event: EventDelete, Src: StatusSuspended, Dst: StatusPendingDeletion},
}

// Tenant is the core domain entity representing an organization using the platform.
type Tenant struct {
	ID       string
	Name     string
	Slug     string
	Status   Status
	Settings map[string]any
	Theme    map[string]any

	// DeletionScheduledAt is set when the tenant enters PENDING_DELETION.
	DeletionScheduledAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTenant creates a tenant in the initial "provisioning" state.
func NewTenant(id, name, slug string) Tenant {
	now := time.Now().UTC()
	return Tenant{
		ID:        id,
		Name:      name,
		Slug:      slug,
		Status:    StatusProvisioning,
		Settings:  map[string]any{},
		Theme:     map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TenantPatch carries a partial update. Nil fields are left untouched.
// The slug is deliberately absent: it is immutable after creation.
type TenantPatch struct {
	Name     *string
	Settings map[string]any
	Theme    map[string]any
}

// Apply merges the patch into t and reports whether anything was provided.
// Settings and Theme are merged key by key; a nil value deletes the key.
func (p TenantPatch) Apply(t *Tenant) bool {
	changed := false
	if p.Name != nil {
		t.Name = *p.Name
		changed = true
	}
	if p.Settings != nil {
		t.Settings = mergeBag(t.Settings, p.Settings)
		changed = true
	}
	if p.Theme != nil {
		t.Theme = mergeBag(t.Theme, p.Theme)
		changed = true
	}
	return changed
}

func mergeBag(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// ListFilter holds optional criteria for listing tenants.
type ListFilter struct {
	Status *Status
	// DeletionDueBefore selects PENDING_DELETION tenants scheduled at or before the time.
	DeletionDueBefore *time.Time
	Limit             int
	Offset            int
}

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,62}[a-z0-9]$`)

// ValidSlug reports whether s is a well-formed tenant or workspace slug:
// 3 to 64 characters of lowercase letters, digits and hyphens, starting with
// a letter and not ending with a hyphen.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}
