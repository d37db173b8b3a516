// Package jobs contains background loops that run alongside the API server.
//
// invitation_expiry.go implements the InvitationExpirySweeper, which
// periodically marks pending organization invitations past their expiry as
// expired. Acceptance already rejects stale tokens regardless, so the sweep is
// housekeeping: it keeps invitation listings honest without requiring an
// expiry check on every read path.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/keynest/keynest/internal/db/repositories"
)

// InvitationExpirySweeper periodically expires stale pending invitations.
type InvitationExpirySweeper struct {
	orgRepo  *repositories.OrganizationRepository
	interval time.Duration
	stopChan chan struct{}
}

// NewInvitationExpirySweeper creates a new sweeper. A non-positive interval
// defaults to one hour.
func NewInvitationExpirySweeper(orgRepo *repositories.OrganizationRepository, interval time.Duration) *InvitationExpirySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &InvitationExpirySweeper{
		orgRepo:  orgRepo,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background sweep loop. It runs an initial sweep
// immediately, then repeats on the configured interval. The loop exits when
// ctx is cancelled or Stop() is called.
func (s *InvitationExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("invitation expiry sweeper started", "interval", s.interval)

	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopChan:
			slog.Info("invitation expiry sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("invitation expiry sweeper context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (s *InvitationExpirySweeper) Stop() {
	close(s.stopChan)
}

func (s *InvitationExpirySweeper) runSweep(ctx context.Context) {
	expired, err := s.orgRepo.ExpireInvitations(ctx)
	if err != nil {
		slog.Error("invitation expiry sweep failed", "error", err)
		return
	}
	if expired > 0 {
		slog.Info("expired stale invitations", "count", expired)
	}
}
