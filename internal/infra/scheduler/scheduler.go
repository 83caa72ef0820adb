package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bookkeeper_bot/internal/domain/schedule"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// jobTimeout bounds a single run of a registered job.
const jobTimeout = 2 * time.Minute

// ErrJobNotFound is returned by Cancel for identifiers this process never issued.
var ErrJobNotFound = fmt.Errorf("scheduled job not found")

// CronScheduler implements schedule.JobScheduler on a robfig/cron engine.
// Job identifiers are random, so ids persisted by an earlier process never match.
type CronScheduler struct {
	cronEngine *cron.Cron
	logger     *logrus.Entry

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewCronScheduler(logger *logrus.Entry) *CronScheduler {
	return &CronScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)), // Use server's local time unless the job names a zone
		logger:     logger,
		entries:    make(map[string]cron.EntryID),
	}
}

func (s *CronScheduler) Register(_ context.Context, job schedule.Job) (string, error) {
	if job.Handler == nil {
		return "", fmt.Errorf("job %q has no handler", job.Name)
	}
	spec := cronSpec(job)
	jobLogger := s.logger.WithFields(logrus.Fields{"job": job.Name, "spec": spec})
	handler := job.Handler

	entryID, err := s.cronEngine.AddFunc(spec, func() {
		jobLogger.Info("Cron job triggered")
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout) // Context for the job
		defer cancel()
		handler(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("could not add cron job %q: %w", job.Name, err)
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.entries[id] = entryID
	s.mu.Unlock()

	jobLogger.WithField("job_id", id).Debug("Cron job added")
	return id, nil
}

func (s *CronScheduler) Cancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	entryID, ok := s.entries[jobID]
	delete(s.entries, jobID)
	s.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	s.cronEngine.Remove(entryID)
	return nil
}

// Start begins firing registered jobs.
func (s *CronScheduler) Start() {
	s.logger.Info("Starting cron scheduler...")
	s.cronEngine.Start()
}

// Stop prevents new runs and waits for running jobs to finish.
func (s *CronScheduler) Stop() {
	s.logger.Info("Stopping cron scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Cron scheduler gracefully stopped.")
}

// cronSpec prefixes the expression with the job's timezone so each job fires in
// its own zone regardless of the engine location.
func cronSpec(job schedule.Job) string {
	spec := strings.TrimSpace(job.Spec)
	if tz := strings.TrimSpace(job.Timezone); tz != "" {
		return "CRON_TZ=" + tz + " " + spec
	}
	return spec
}
