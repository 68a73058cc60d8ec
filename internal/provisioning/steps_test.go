package provisioning_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexica/plexica-sub002/internal/domain"
	"github.com/plexica/plexica-sub002/internal/provisioning"
	"github.com/plexica/plexica-sub002/internal/provisioning/provisioningtest"
)

func TestPlan_DeclaredOrder(t *testing.T) {
	steps := provisioning.Plan(provisioningtest.NewSystems().Dependencies())

	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{
		provisioning.StepCreateSchema,
		provisioning.StepCreateRealm,
		provisioning.StepRealmClients,
		provisioning.StepRealmRoles,
		provisioning.StepCreateBucket,
		provisioning.StepCreateAdminUser,
		provisioning.StepSendInvitation,
	}, names)
}

func TestPlan_HappyPath(t *testing.T) {
	sys := provisioningtest.NewSystems()
	pc := testContext()

	res := newOrchestrator(t).Run(context.Background(), pc, provisioning.Plan(sys.Dependencies()))

	require.True(t, res.Success, "run failed: %v", res.Err)
	assert.Equal(t, []string{
		"CreateSchema(tenant_acme_corp)",
		"CreateRealm(acme-corp)",
		"ProvisionRealmClients(acme-corp)",
		"ProvisionRealmRoles(acme-corp)",
		"CreateBucket(tenant-acme-corp)",
		"CreateAdminUser(acme-corp/admin@acme.test)",
		"SendInvitation(admin@acme.test)",
	}, sys.Journal.Calls())

	sent := sys.Invitations.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "t-1", sent[0].TenantID)
	assert.NotEmpty(t, sent[0].Token)

	assert.Equal(t, map[string]any{
		"identity_realm":          "acme-corp",
		"database_schema":         "tenant_acme_corp",
		"storage_bucket":          "tenant-acme-corp",
		"admin_user_id":           "user-acme-corp",
		"admin_invitation_sha256": domain.InvitationDigest(sent[0].Token),
	}, pc.Settings())
}

func TestPlan_BucketFailureRollsBackRealmAndSchema(t *testing.T) {
	sys := provisioningtest.NewSystems()
	sys.Journal.FailOn("CreateBucket", errors.New("quota exceeded"))

	res := newOrchestrator(t).Run(context.Background(), testContext(), provisioning.Plan(sys.Dependencies()))

	require.False(t, res.Success)
	assert.Equal(t, provisioning.StepCreateBucket, res.FailedStep)
	assert.Equal(t, []string{
		provisioning.StepCreateSchema,
		provisioning.StepCreateRealm,
		provisioning.StepRealmClients,
		provisioning.StepRealmRoles,
	}, res.Completed)

	assert.True(t, sys.Journal.Called("DeleteRealm", "acme-corp"))
	assert.True(t, sys.Journal.Called("DropSchema", "tenant_acme_corp"))
	assert.False(t, sys.Journal.Called("RemoveBucket", "tenant-acme-corp"), "failed step must not be compensated")
	assert.False(t, sys.Identity.HasRealm("acme-corp"))

	calls := sys.Journal.Calls()
	assert.Equal(t, "DropSchema(tenant_acme_corp)", calls[len(calls)-1], "schema is dropped last")
}

func TestPlan_AdminUserFailureRemovesBucket(t *testing.T) {
	sys := provisioningtest.NewSystems()
	sys.Journal.FailOn("CreateAdminUser", errors.New("email taken"))

	res := newOrchestrator(t).Run(context.Background(), testContext(), provisioning.Plan(sys.Dependencies()))

	require.False(t, res.Success)
	assert.True(t, sys.Journal.Called("RemoveBucket", "tenant-acme-corp"))
	assert.True(t, sys.Journal.Called("DeleteRealm", "acme-corp"))
	assert.False(t, sys.Journal.Called("SendInvitation", "admin@acme.test"))
}

func TestPlan_InvitationFailureDoesNotAbort(t *testing.T) {
	sys := provisioningtest.NewSystems()
	sys.Journal.FailOn("SendInvitation", errors.New("queue unavailable"))

	res := newOrchestrator(t).Run(context.Background(), testContext(), provisioning.Plan(sys.Dependencies()))

	require.True(t, res.Success)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, provisioning.StepSendInvitation, res.Warnings[0].Step)
	assert.False(t, sys.Journal.Called("DeleteRealm", "acme-corp"))
}

func TestPlan_UnsentInvitationRecordsNoDigest(t *testing.T) {
	sys := provisioningtest.NewSystems()
	sys.Journal.FailOn("SendInvitation", errors.New("queue unavailable"))
	pc := testContext()

	res := newOrchestrator(t).Run(context.Background(), pc, provisioning.Plan(sys.Dependencies()))

	require.True(t, res.Success)
	assert.NotContains(t, pc.Settings(), "admin_invitation_sha256")
}

func TestRealmDependentSteps_RequireRealm(t *testing.T) {
	sys := provisioningtest.NewSystems()
	steps := provisioning.Plan(sys.Dependencies())

	// Run only the clients step: the realm was never created in this context.
	res := newOrchestrator(t).Run(context.Background(), testContext(), steps[2:3])

	require.False(t, res.Success)
	assert.Equal(t, provisioning.StepRealmClients, res.FailedStep)
	assert.Zero(t, sys.Journal.Count())
}
