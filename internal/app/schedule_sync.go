package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bookkeeper_bot/internal/domain/chat"
	"bookkeeper_bot/internal/domain/expense"
	"bookkeeper_bot/internal/domain/kv"
	"bookkeeper_bot/internal/domain/schedule"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	cronJobIDsKey = "cron_job_ids_v1"

	jobDaily   = "daily"
	jobMonthly = "monthly"

	// maxConcurrentPushes bounds outbound sends during a scheduled push.
	maxConcurrentPushes = 4
)

// ScheduleSynchronizer turns the daily/monthly settings into scheduler jobs and
// renders the pushes those jobs send. The job registry is rebuilt in full on
// every Sync, never patched.
type ScheduleSynchronizer struct {
	mu        sync.Mutex
	scheduler schedule.JobScheduler // nil when no scheduler is available
	kv        kv.Store
	settings  *SettingsStore
	records   *RecordStore
	clock     *Clock
	sender    chat.Sender
	logger    *logrus.Entry
}

func NewScheduleSynchronizer(
	scheduler schedule.JobScheduler,
	store kv.Store,
	settingsStore *SettingsStore,
	records *RecordStore,
	clock *Clock,
	sender chat.Sender,
	logger *logrus.Entry,
) *ScheduleSynchronizer {
	return &ScheduleSynchronizer{
		scheduler: scheduler,
		kv:        store,
		settings:  settingsStore,
		records:   records,
		clock:     clock,
		sender:    sender,
		logger:    logger,
	}
}

// Sync deletes every registered job and registers one per enabled schedule.
// Invalid schedule settings skip only the affected job.
func (s *ScheduleSynchronizer) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil {
		s.logger.Warn("Job scheduler is not available, scheduled bills are disabled")
		return nil
	}
	if err := s.deleteRegisteredUnlocked(ctx); err != nil {
		return err
	}

	cfg := s.settings.Get()
	timezone := s.clock.ZoneName()
	registry := make(map[string]string)

	if cfg.DailyReportEnabled {
		expr, err := schedule.DailyExpression(cfg.DailyReportTime)
		if err != nil {
			s.logger.WithError(err).WithField("daily_report_time", cfg.DailyReportTime).Warn("Invalid daily report time, daily job skipped")
		} else {
			s.register(ctx, registry, jobDaily, schedule.Job{
				Name:        "bookkeeper_daily_bill",
				Spec:        expr,
				Timezone:    timezone,
				Description: "Bookkeeper daily bill push",
				Handler:     s.runJob(jobDaily, s.PushDaily),
			})
		}
	}

	if cfg.MonthlyReportEnabled {
		expr, err := schedule.MonthlyExpression(cfg.MonthlyReportDay, cfg.MonthlyReportTime)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"monthly_report_day":  cfg.MonthlyReportDay,
				"monthly_report_time": cfg.MonthlyReportTime,
			}).Warn("Invalid monthly schedule settings, monthly job skipped")
		} else {
			s.register(ctx, registry, jobMonthly, schedule.Job{
				Name:        "bookkeeper_monthly_bill",
				Spec:        expr,
				Timezone:    timezone,
				Description: "Bookkeeper monthly bill push",
				Handler:     s.runJob(jobMonthly, s.PushMonthly),
			})
		}
	}

	if err := s.saveRegistryUnlocked(ctx, registry); err != nil {
		return err
	}
	s.logger.WithField("jobs", len(registry)).Info("Scheduled bill jobs synchronized")
	return nil
}

// Teardown deletes every registered job and clears the registry.
func (s *ScheduleSynchronizer) Teardown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return nil
	}
	return s.deleteRegisteredUnlocked(ctx)
}

func (s *ScheduleSynchronizer) register(ctx context.Context, registry map[string]string, name string, job schedule.Job) {
	jobLogger := s.logger.WithFields(logrus.Fields{"job": name, "spec": job.Spec, "timezone": job.Timezone})
	jobID, err := s.scheduler.Register(ctx, job)
	if err != nil {
		jobLogger.WithError(err).Warn("Failed to register scheduled job")
		return
	}
	registry[name] = jobID
	jobLogger.WithField("job_id", jobID).Info("Scheduled job registered")
}

func (s *ScheduleSynchronizer) runJob(name string, push func(context.Context) error) schedule.Handler {
	return func(ctx context.Context) {
		s.logger.WithField("job", name).Info("Scheduled bill job triggered")
		if err := push(ctx); err != nil {
			s.logger.WithError(err).WithField("job", name).Error("Scheduled bill push finished with errors")
		}
	}
}

// deleteRegisteredUnlocked cancels every recorded job. Cancel failures are
// swallowed; the registry is cleared regardless.
func (s *ScheduleSynchronizer) deleteRegisteredUnlocked(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, cronJobIDsKey)
	if err != nil {
		return fmt.Errorf("failed to load cron job registry: %w", err)
	}
	for _, jobID := range registryJobIDs(raw) {
		if err := s.scheduler.Cancel(ctx, jobID); err != nil {
			s.logger.WithError(err).WithField("job_id", jobID).Debug("Ignoring cron job delete failure")
		}
	}
	return s.saveRegistryUnlocked(ctx, map[string]string{})
}

func (s *ScheduleSynchronizer) saveRegistryUnlocked(ctx context.Context, registry map[string]string) error {
	data, err := json.Marshal(registry)
	if err != nil {
		return fmt.Errorf("failed to encode cron job registry: %w", err)
	}
	if err := s.kv.Put(ctx, cronJobIDsKey, data); err != nil {
		return fmt.Errorf("failed to save cron job registry: %w", err)
	}
	return nil
}

// registryJobIDs accepts the current mapping shape and the older list shape.
func registryJobIDs(raw []byte) []string {
	if raw == nil {
		return nil
	}
	var ids []string
	var byName map[string]any
	if err := json.Unmarshal(raw, &byName); err == nil {
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if id, ok := byName[name].(string); ok && id != "" {
				ids = append(ids, id)
			}
		}
		return ids
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, v := range list {
			if id, ok := v.(string); ok && id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// PushDaily sends today's bill to every session that recorded something today.
func (s *ScheduleSynchronizer) PushDaily(ctx context.Context) error {
	today := s.clock.Today()
	return s.push(ctx, "🔔 每日账单推送", expense.FormatDate(today), today, today.AddDate(0, 0, 1))
}

// PushMonthly sends the current month's bill to every session with records this month.
func (s *ScheduleSynchronizer) PushMonthly(ctx context.Context) error {
	start, end := MonthRange(s.clock.Today())
	return s.push(ctx, "🔔 每月账单推送", PeriodLabel(start, end), start, end)
}

type sessionBill struct {
	session string
	records []expense.Record
}

func (s *ScheduleSynchronizer) push(ctx context.Context, title, period string, start, endExclusive time.Time) error {
	records, err := s.records.Snapshot(ctx)
	if err != nil {
		return err
	}
	bills := groupBySession(records, start, endExclusive)
	if len(bills) == 0 {
		s.logger.WithField("title", title).Info("No records to push")
		return nil
	}

	renderer := NewRenderer(s.settings.Get())
	// A plain group: one failed send must not cancel the others.
	var g errgroup.Group
	g.SetLimit(maxConcurrentPushes)
	for _, bill := range bills {
		g.Go(func() error {
			text := renderer.RenderBill(title, period, bill.records)
			if err := s.sender.SendText(ctx, bill.session, text); err != nil {
				s.logger.WithError(err).WithField("session", bill.session).Error("Failed to push bill")
				return fmt.Errorf("push to session %s: %w", bill.session, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// groupBySession keeps records in [start, endExclusive) with a non-blank session,
// grouped in first-seen session order and sorted by timestamp.
func groupBySession(records []expense.Record, start, endExclusive time.Time) []sessionBill {
	var bills []sessionBill
	index := make(map[string]int)
	for _, r := range records {
		session := strings.TrimSpace(r.Session)
		if session == "" || !inRange(r, start, endExclusive) {
			continue
		}
		i, ok := index[session]
		if !ok {
			i = len(bills)
			index[session] = i
			bills = append(bills, sessionBill{session: session})
		}
		bills[i].records = append(bills[i].records, r)
	}
	for i := range bills {
		sortByTimestamp(bills[i].records)
	}
	return bills
}
