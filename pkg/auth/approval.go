package auth

import (
	"context"
	"errors"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/users"
)

// errConsumed rolls back an approval that another request consumed first
var errConsumed = errors.New("approval consumed concurrently")

// ApprovalService consumes email approval challenges
type ApprovalService struct {
	users     UserRepository
	approvals ApprovalRepository
	tx        postgres.TxRunner
	metrics   *observability.Metrics
}

// NewApprovalService creates an approval service
func NewApprovalService(users UserRepository, approvals ApprovalRepository, tx postgres.TxRunner, metrics *observability.Metrics) *ApprovalService {
	return &ApprovalService{users: users, approvals: approvals, tx: tx, metrics: metrics}
}

// Approve activates the user of approval id when code matches and archives the
// approval. A missing, consumed or mismatching approval returns false and leaves
// the record untouched so the caller may retry.
func (s *ApprovalService) Approve(ctx context.Context, id, code string) (approved bool, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.Approve")
	defer func() { observability.EndSpan(span, err) }()
	defer func() {
		result := "rejected"
		if err != nil {
			result = "failure"
		} else if approved {
			result = "success"
		}
		s.metrics.RecordAuthEvent("approve", result)
	}()

	logger := observability.FromContext(ctx).WithField("approval_id", id)

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		approval, err := s.approvals.FindPending(ctx, id)
		if errors.Is(err, postgres.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if !codesEqual(approval.Code, code) {
			logger.Info("approval code mismatch")
			return nil
		}

		user, err := s.users.FindByID(ctx, approval.UserID)
		if errors.Is(err, postgres.ErrNotFound) {
			return apperr.Internal(domain, "approval %s references missing user %s", approval.ID, approval.UserID)
		}
		if err != nil {
			return err
		}

		if user.Status == users.StatusWaitingForEmailApproval {
			err := s.users.UpdateStatus(ctx, user.ID, user.Version, users.StatusActive)
			if errors.Is(err, postgres.ErrVersionMismatch) {
				return apperr.VersionConflict(domain, "UserProfile", user.ID, user.Version)
			}
			if err != nil {
				return err
			}
		}

		err = s.approvals.Archive(ctx, approval.ID, approval.Version)
		if errors.Is(err, postgres.ErrNotFound) || errors.Is(err, postgres.ErrVersionMismatch) {
			return errConsumed
		}
		if err != nil {
			return err
		}

		approved = true
		return nil
	})
	if errors.Is(err, errConsumed) {
		logger.Info("approval was consumed by a concurrent request")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if approved {
		logger.Info("email approved")
	}
	return approved, nil
}
