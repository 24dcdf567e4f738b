// voucher_stats.go implements the VoucherStatsJob background job, which
// periodically counts outstanding and redeemed invitations and exports the
// numbers as Prometheus gauges. The counts come from a single aggregate query,
// so the job is cheap enough to run every few minutes.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/flotilla-games/entitlement-service/internal/db/repositories"
	"github.com/flotilla-games/entitlement-service/internal/telemetry"
)

// InvitationCounter is the slice of the voucher repository the job needs.
type InvitationCounter interface {
	Stats(ctx context.Context) (*repositories.InvitationStats, error)
}

// VoucherStatsJob refreshes the invitation gauges on a fixed interval.
type VoucherStatsJob struct {
	vouchers InvitationCounter
	interval time.Duration
	stopChan chan struct{}
}

// NewVoucherStatsJob creates the job. A non-positive interval falls back to
// five minutes.
func NewVoucherStatsJob(vouchers InvitationCounter, interval time.Duration) *VoucherStatsJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &VoucherStatsJob{
		vouchers: vouchers,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the refresh loop. It runs once immediately so the gauges are
// populated before the first scrape, then repeats on the interval. The loop
// exits when ctx is cancelled or Stop is called.
func (j *VoucherStatsJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("voucher stats job started", "interval", j.interval)

	j.refresh(ctx)

	for {
		select {
		case <-ticker.C:
			j.refresh(ctx)
		case <-j.stopChan:
			slog.Info("voucher stats job stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the refresh loop to exit.
func (j *VoucherStatsJob) Stop() {
	close(j.stopChan)
}

// refresh queries the counts and updates the gauges. Query failures leave the
// previous gauge values in place.
func (j *VoucherStatsJob) refresh(ctx context.Context) {
	stats, err := j.vouchers.Stats(ctx)
	if err != nil {
		slog.Warn("voucher stats refresh failed", "error", err)
		return
	}

	telemetry.OutstandingInvitations.Set(float64(stats.Outstanding))
	telemetry.RedeemedInvitations.Set(float64(stats.Redeemed))
}
