package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/firebase"
	"neighborvendors_backend/internal/notification"
	"neighborvendors_backend/internal/shared"
)

// OrphanSweepJob periodically pages through provider identities and flags
// the ones older than the fast-path window with no profile behind them.
// These are the orphans interactive repair never saw: the visitor abandoned
// the flow and never came back. The job only reports; repair stays a
// user-driven action.
type OrphanSweepJob struct {
	users         shared.Service
	provider      *firebase.Service
	notify        *notification.Service
	logger        *zap.Logger
	cfg           *config.Config
	cronScheduler *cron.Cron
}

// NewOrphanSweepJob creates a new OrphanSweepJob.
func NewOrphanSweepJob(
	users shared.Service,
	provider *firebase.Service,
	notify *notification.Service,
	logger *zap.Logger,
	cfg *config.Config,
) *OrphanSweepJob {
	scheduler := cron.New(cron.WithLogger(NewCronLogger(logger.Named("cron"))))

	return &OrphanSweepJob{
		users:         users,
		provider:      provider,
		notify:        notify,
		logger:        logger.Named("OrphanSweepJob"),
		cfg:           cfg,
		cronScheduler: scheduler,
	}
}

// SetupAndStart schedules and starts the cron job.
func (j *OrphanSweepJob) SetupAndStart() error {
	jobSpec := j.cfg.OrphanSweepJobSchedule
	if jobSpec == "" {
		j.logger.Warn("Orphan sweep job schedule not defined (ORPHAN_SWEEP_JOB_SCHEDULE). Job will not run.")
		return nil
	}

	jobID, err := j.cronScheduler.AddFunc(jobSpec, j.runJob)
	if err != nil {
		j.logger.Error("Failed to schedule orphan sweep job", zap.String("spec", jobSpec), zap.Error(err))
		return err
	}

	j.logger.Info("Orphan sweep job scheduled", zap.String("spec", jobSpec), zap.Any("jobID", jobID))
	j.cronScheduler.Start()
	return nil
}

// runJob is the actual work performed by the cron job.
func (j *OrphanSweepJob) runJob() {
	j.logger.Info("Starting orphan sweep run...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	flagged, err := j.Sweep(ctx)
	if err != nil {
		j.logger.Error("Orphan sweep run failed", zap.Error(err))
		return
	}
	j.logger.Info("Orphan sweep run completed", zap.Int("orphans_flagged", flagged))
}

// Sweep walks the provider identities once and returns the number flagged.
func (j *OrphanSweepJob) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-j.cfg.OrphanFastPathMaxAge)
	flagged := 0

	err := j.provider.Identities(ctx, func(identity *shared.Identity) bool {
		if identity.CreatedAt.After(cutoff) {
			return true
		}

		_, err := j.users.GetBySubject(ctx, identity.Subject)
		if err == nil {
			return true
		}
		if apiErr, ok := common.IsAPIError(err); !ok || apiErr.StatusCode != 404 {
			j.logger.Error("Profile lookup failed during sweep",
				zap.Error(err), zap.String("subject", identity.Subject))
			return true
		}

		ageDays := int(time.Since(identity.CreatedAt).Hours() / 24)
		j.logger.Warn("Orphaned provider identity found by sweep",
			zap.String("subject", identity.Subject),
			zap.Int("age_days", ageDays))
		j.notify.Emit(ctx, notification.KeyOrphanFlagged, notification.OrphanFlagged{
			Subject: identity.Subject,
			Email:   identity.Email,
			AgeDays: ageDays,
		})
		flagged++
		return true
	})
	if err != nil {
		return flagged, err
	}
	return flagged, nil
}

// Stop gracefully stops the cron scheduler.
func (j *OrphanSweepJob) Stop() {
	if j.cronScheduler != nil {
		j.logger.Info("Stopping orphan sweep job scheduler...")
		stopCtx := j.cronScheduler.Stop()
		select {
		case <-stopCtx.Done():
			j.logger.Info("Orphan sweep job scheduler stopped gracefully.")
		case <-time.After(10 * time.Second):
			j.logger.Warn("Orphan sweep job scheduler stop timed out.")
		}
	}
}

// cronLogger adapts zap.Logger to the cron.Logger interface.
type cronLogger struct {
	zl *zap.Logger
}

// NewCronLogger creates a new cronLogger.
func NewCronLogger(zl *zap.Logger) cron.Logger {
	return &cronLogger{zl: zl}
}

// Info logs routine messages from cron.
func (cl *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	cl.zl.Info(msg, cl.parseKeysAndValues(keysAndValues...)...)
}

// Error logs error messages from cron.
func (cl *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := cl.parseKeysAndValues(keysAndValues...)
	fields = append(fields, zap.Error(err))
	cl.zl.Error(msg, fields...)
}

func (cl *cronLogger) parseKeysAndValues(keysAndValues ...interface{}) []zap.Field {
	var fields []zap.Field
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
		} else {
			fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), "MISSING_VALUE"))
		}
	}
	return fields
}
