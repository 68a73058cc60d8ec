package river

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/domain"
)

const invitationMaxAttempts = 5

// InvitationJobArgs is the queued form of a domain.Invitation.
type InvitationJobArgs struct {
	TenantID   string `json:"tenant_id"`
	TenantSlug string `json:"tenant_slug"`
	TenantName string `json:"tenant_name"`
	Email      string `json:"email"`
	Token      string `json:"token"`
}

func (InvitationJobArgs) Kind() string { return "invitation.send" }

// InvitationSender implements domain.InvitationSender by enqueuing the
// invitation. Delivery happens later in InvitationWorker, with retries, so a
// slow or unavailable mail server never holds up provisioning.
type InvitationSender struct {
	client *Client
}

var _ domain.InvitationSender = (*InvitationSender)(nil)

// NewInvitationSender creates a sender backed by the given River client.
func NewInvitationSender(client *Client) *InvitationSender {
	return &InvitationSender{client: client}
}

func (s *InvitationSender) SendInvitation(ctx context.Context, inv domain.Invitation) error {
	_, err := s.client.Insert(ctx, InvitationJobArgs{
		TenantID:   inv.TenantID,
		TenantSlug: inv.TenantSlug,
		TenantName: inv.TenantName,
		Email:      inv.Email,
		Token:      inv.Token,
	}, &river.InsertOpts{MaxAttempts: invitationMaxAttempts})
	if err != nil {
		return fmt.Errorf("enqueuing invitation job: %w", err)
	}
	return nil
}

// InvitationWorker delivers queued invitations through a mailer.
type InvitationWorker struct {
	river.WorkerDefaults[InvitationJobArgs]

	mailer domain.InvitationSender
	logger *zap.Logger
}

// Work hands the invitation to the mailer. An error makes River retry the job
// until invitationMaxAttempts is reached.
func (w *InvitationWorker) Work(ctx context.Context, job *river.Job[InvitationJobArgs]) error {
	log := w.logger.With(
		zap.String("tenant_id", job.Args.TenantID),
		zap.String("email", job.Args.Email),
		zap.Int64("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
	)

	if w.mailer == nil {
		log.Warn("no mailer configured, dropping invitation")
		return nil
	}

	err := w.mailer.SendInvitation(ctx, domain.Invitation{
		TenantID:   job.Args.TenantID,
		TenantSlug: job.Args.TenantSlug,
		TenantName: job.Args.TenantName,
		Email:      job.Args.Email,
		Token:      job.Args.Token,
	})
	if err != nil {
		log.Warn("invitation delivery failed", zap.Error(err))
		return fmt.Errorf("delivering invitation: %w", err)
	}

	log.Info("invitation delivered")
	return nil
}
