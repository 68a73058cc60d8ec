// Package provisioning runs tenant provisioning as a saga: an ordered list of
// steps, each with a forward action and a compensating action. When a step
// fails, every step that already completed is compensated in reverse order.
package provisioning

import (
	"context"
	"time"
)

// Context carries tenant data across the steps of one run. It is owned by a
// single Orchestrator.Run call and never persisted. Steps publish values that
// later steps need (the realm name, the admin user id) by setting fields here;
// StepRecord results are reserved for compensation.
type Context struct {
	TenantID    string
	Slug        string
	DisplayName string
	AdminEmail  string

	Realm       string
	Schema      string
	Bucket      string
	AdminUserID string

	// InvitationDigest is set once the administrator invitation was handed
	// to the sender.
	InvitationDigest string
}

// Settings returns the values recorded on the tenant after a successful run.
func (pc *Context) Settings() map[string]any {
	out := map[string]any{}
	if pc.Realm != "" {
		out["identity_realm"] = pc.Realm
	}
	if pc.Schema != "" {
		out["database_schema"] = pc.Schema
	}
	if pc.Bucket != "" {
		out["storage_bucket"] = pc.Bucket
	}
	if pc.AdminUserID != "" {
		out["admin_user_id"] = pc.AdminUserID
	}
	if pc.InvitationDigest != "" {
		out["admin_invitation_sha256"] = pc.InvitationDigest
	}
	return out
}

// Step is one unit of provisioning work against a single external system.
//
// Forward must be safe to call again for the same tenant: a later retry path
// may re-run it after an earlier attempt was compensated. The value it returns
// is handed back to Compensate unchanged.
type Step interface {
	Name() string
	Forward(ctx context.Context, pc *Context) (any, error)
	Compensate(ctx context.Context, pc *Context, result any) error
}

// Optional is implemented by best-effort steps. A failing optional step is
// reported as a warning and the run continues; it is never compensated.
type Optional interface {
	Optional() bool
}

// StepRecord is kept for each completed step until the run ends.
type StepRecord struct {
	Name   string
	Result any
	step   Step
}

// Warning records the failure of an optional step.
type Warning struct {
	Step string
	Err  error
}

// Result is the outcome of one run.
type Result struct {
	Success   bool
	Completed []string

	// Set when Success is false.
	FailedStep string
	Err        error

	Compensated        []string
	CompensationErrors error
	Warnings           []Warning

	Duration time.Duration
}

// funcStep adapts plain functions to the Step interface.
type funcStep struct {
	name       string
	forward    func(ctx context.Context, pc *Context) (any, error)
	compensate func(ctx context.Context, pc *Context, result any) error
	optional   bool
}

// NewStep builds a Step from functions. A nil compensate is a no-op.
func NewStep(
	name string,
	forward func(ctx context.Context, pc *Context) (any, error),
	compensate func(ctx context.Context, pc *Context, result any) error,
) Step {
	return &funcStep{name: name, forward: forward, compensate: compensate}
}

// NewOptionalStep builds a best-effort Step from a function.
func NewOptionalStep(name string, forward func(ctx context.Context, pc *Context) (any, error)) Step {
	return &funcStep{name: name, forward: forward, optional: true}
}

func (s *funcStep) Name() string   { return s.name }
func (s *funcStep) Optional() bool { return s.optional }

func (s *funcStep) Forward(ctx context.Context, pc *Context) (any, error) {
	return s.forward(ctx, pc)
}

func (s *funcStep) Compensate(ctx context.Context, pc *Context, result any) error {
	if s.compensate == nil {
		return nil
	}
	return s.compensate(ctx, pc, result)
}

func isOptional(s Step) bool {
	o, ok := s.(Optional)
	return ok && o.Optional()
}
