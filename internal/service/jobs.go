package service

import (
	"context"
	"time"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/Payphone-Digital/auth-service/pkg/scheduler"
)

// Jobs holds the periodic maintenance work of the service.
type Jobs struct {
	revocation *RevocationStore
	users      UserStore
	retention  time.Duration
	now        func() time.Time
}

func NewJobs(revocation *RevocationStore, users UserStore, retention time.Duration) *Jobs {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Jobs{revocation: revocation, users: users, retention: retention, now: time.Now}
}

// PurgeRevokedTokens drops revocation records whose token has expired.
func (j *Jobs) PurgeRevokedTokens(ctx context.Context) (int64, error) {
	n, err := j.revocation.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.InfoWithContext(ctx, "Purged expired revocations").
			Int64("count", n).
			Log()
	}
	return n, nil
}

// CleanupUnverifiedUsers deletes signups that never verified within the
// retention window.
func (j *Jobs) CleanupUnverifiedUsers(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.users.DeleteUnverifiedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.InfoWithContext(ctx, "Deleted stale unverified users").
			Int64("count", n).
			String("cutoff", cutoff.Format(time.RFC3339)).
			Log()
	}
	return n, nil
}

func (j *Jobs) Register(s *scheduler.Scheduler, cfg config.JobsConfig) error {
	if err := s.Register(scheduler.Job{
		Name:     constants.JobRevocationPurge,
		Interval: cfg.PurgeInterval,
		Run:      j.PurgeRevokedTokens,
	}); err != nil {
		return err
	}
	return s.Register(scheduler.Job{
		Name:     constants.JobUnverifiedUserCleanup,
		Interval: cfg.CleanupInterval,
		Run:      j.CleanupUnverifiedUsers,
	})
}
