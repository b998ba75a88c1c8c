package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/token"
	"github.com/platinummonkey/tenantgate/pkg/users"
)

func signedUp(t *testing.T, e *env, email string) (userID, approvalID, code string) {
	t.Helper()
	result, err := e.signup.SignUp(context.Background(), signupRequest(email))
	require.NoError(t, err)
	approval := e.w.approvals[result.ApprovalID]
	return approval.UserID, approval.ID, approval.Code
}

func TestApproveConsumesChallenge(t *testing.T) {
	e := newEnv(t, token.ModeNoTenant)
	userID, approvalID, code := signedUp(t, e, "ann@example.com")

	ok, err := e.approvals.Approve(context.Background(), approvalID, code)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, users.StatusActive, e.w.users[userID].Status)
	assert.True(t, e.w.approvals[approvalID].archived)

	ok, err = e.approvals.Approve(context.Background(), approvalID, code)
	require.NoError(t, err)
	assert.False(t, ok, "an archived approval is not found")

	err = e.service.ApproveSignup(context.Background(), approvalID, code)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApproveWrongCodeAllowsRetry(t *testing.T) {
	e := newEnv(t, token.ModeNoTenant)
	userID, approvalID, code := signedUp(t, e, "ann@example.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	err := e.service.ApproveSignup(context.Background(), approvalID, wrong)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, users.StatusWaitingForEmailApproval, e.w.users[userID].Status)
	assert.False(t, e.w.approvals[approvalID].archived)

	require.NoError(t, e.service.ApproveSignup(context.Background(), approvalID, code))
	assert.Equal(t, users.StatusActive, e.w.users[userID].Status)
}

func TestApproveUnknownID(t *testing.T) {
	e := newEnv(t, token.ModeNoTenant)

	ok, err := e.approvals.Approve(context.Background(), "0b0b0b0b-0000-4000-8000-000000000000", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApproveStaleUserVersionRollsBack(t *testing.T) {
	e := newEnv(t, token.ModeNoTenant)
	userID, approvalID, code := signedUp(t, e, "ann@example.com")

	approvals := NewApprovalService(staleUsers{fakeUsers{e.w}}, fakeApprovals{e.w}, memTx{e.w}, nil)
	_, err := approvals.Approve(context.Background(), approvalID, code)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, users.StatusWaitingForEmailApproval, e.w.users[userID].Status)
	assert.False(t, e.w.approvals[approvalID].archived)
}

// staleUsers reads a version that a concurrent writer already bumped
type staleUsers struct{ fakeUsers }

func (s staleUsers) FindByID(ctx context.Context, id string) (*users.Profile, error) {
	p, err := s.fakeUsers.FindByID(ctx, id)
	if err == nil {
		p.Version--
	}
	return p, err
}
