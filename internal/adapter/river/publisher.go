// Package river runs the service's background work on River over SQLite:
// lifecycle events, invitation delivery and the deletion sweep.
package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// Client is River parameterized for database/sql transactions.
type Client = river.Client[*sql.Tx]

// EventJobArgs is a lifecycle event plus a snapshot of the tenant when it
// happened. The snapshot matters for purge events: the row is already gone
// by the time the job runs.
type EventJobArgs struct {
	Event    string `json:"event"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
}

func (EventJobArgs) Kind() string { return "event.published" }

// InsertOpts tags event jobs with the event name so they can be filtered in
// River's tables.
func (a EventJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 10,
		Tags:        []string{"lifecycle", a.Event},
	}
}

// Publisher implements domain.EventPublisher by enqueuing one job per event.
// Jobs can be inserted before the client is started.
type Publisher struct {
	client *Client
}

var _ domain.EventPublisher = (*Publisher)(nil)

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, event domain.Event, tenant domain.Tenant) error {
	return insertEvent(ctx, p.client, event, tenant)
}

func insertEvent(ctx context.Context, client *Client, event domain.Event, tenant domain.Tenant) error {
	args := EventJobArgs{
		Event:    string(event),
		TenantID: tenant.ID,
		Name:     tenant.Name,
		Slug:     tenant.Slug,
		Status:   string(tenant.Status),
	}
	if _, err := client.Insert(ctx, args, nil); err != nil {
		return fmt.Errorf("enqueuing %s event for tenant %s: %w", event, tenant.ID, err)
	}
	return nil
}
