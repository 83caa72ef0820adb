package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"bookkeeper_bot/internal/domain/settings"
)

func TestSyncRegistersEnabledJobs(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*settings.Settings)
		expected []string
	}{
		{
			name:     "all disabled",
			mutate:   func(s *settings.Settings) {},
			expected: nil,
		},
		{
			name: "daily only",
			mutate: func(s *settings.Settings) {
				s.DailyReportEnabled = true
				s.DailyReportTime = "09:00"
			},
			expected: []string{"0 9 * * *"},
		},
		{
			name: "monthly on the last possible day",
			mutate: func(s *settings.Settings) {
				s.MonthlyReportEnabled = true
				s.MonthlyReportDay = 31
				s.MonthlyReportTime = "23:59"
			},
			expected: []string{"59 23 31 * *"},
		},
		{
			name: "invalid daily time skips only the daily job",
			mutate: func(s *settings.Settings) {
				s.DailyReportEnabled = true
				s.DailyReportTime = "25:00"
				s.MonthlyReportEnabled = true
				s.MonthlyReportDay = 1
				s.MonthlyReportTime = "8:05"
			},
			expected: []string{"5 8 1 * *"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed := settings.Defaults()
			seed.ScheduleTimezone = "UTC"
			tt.mutate(&seed)
			env := newTestEnvWith(t, seed)

			if err := env.sync.Sync(context.Background()); err != nil {
				t.Fatalf("sync: %v", err)
			}
			got := env.scheduler.specs()
			sort.Strings(got)
			if strings.Join(got, "|") != strings.Join(tt.expected, "|") {
				t.Fatalf("expected specs %v, got %v", tt.expected, got)
			}
			if n := len(registryJobIDs([]byte(env.kv.raw(cronJobIDsKey)))); n != len(tt.expected) {
				t.Fatalf("expected %d registry entries, got %d", len(tt.expected), n)
			}
		})
	}
}

func TestSyncReplacesPreviousJobs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	if _, err := env.svc.SetDaily(ctx, adminEvent(), true, "09:00"); err != nil {
		t.Fatalf("set daily: %v", err)
	}
	if _, err := env.svc.SetDaily(ctx, adminEvent(), true, "10:30"); err != nil {
		t.Fatalf("set daily: %v", err)
	}
	specs := env.scheduler.specs()
	if len(specs) != 1 || specs[0] != "30 10 * * *" {
		t.Fatalf("expected only the latest daily job, got %v", specs)
	}
	for _, job := range env.scheduler.jobs {
		if job.Timezone != "UTC" {
			t.Fatalf("expected job timezone UTC, got %q", job.Timezone)
		}
	}
}

func TestSyncWithoutSchedulerIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.sync.scheduler = nil
	if err := env.sync.Sync(context.Background()); err != nil {
		t.Fatalf("expected nil error without scheduler, got %v", err)
	}
	if env.kv.raw(cronJobIDsKey) != "" {
		t.Fatalf("registry must not be written without scheduler")
	}
}

func TestTeardownClearsRegistry(t *testing.T) {
	ctx := context.Background()
	seed := settings.Defaults()
	seed.DailyReportEnabled = true
	seed.MonthlyReportEnabled = true
	env := newTestEnvWith(t, seed)
	if err := env.sync.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := env.sync.Teardown(ctx); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if len(env.scheduler.specs()) != 0 {
		t.Fatalf("expected all jobs cancelled, got %v", env.scheduler.specs())
	}
	if got := env.kv.raw(cronJobIDsKey); got != "{}" {
		t.Fatalf("expected empty registry, got %q", got)
	}
}

func TestCancelFailuresAreIgnored(t *testing.T) {
	ctx := context.Background()
	seed := settings.Defaults()
	seed.DailyReportEnabled = true
	env := newTestEnvWith(t, seed)
	if err := env.sync.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	env.scheduler.cancelErr = errors.New("scheduler unavailable")
	if err := env.sync.Sync(ctx); err != nil {
		t.Fatalf("sync must tolerate cancel failures, got %v", err)
	}
	if len(env.scheduler.cancelled) != 1 {
		t.Fatalf("expected one cancel attempt, got %v", env.scheduler.cancelled)
	}
}

func TestRegistryJobIDsAcceptsBothShapes(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
	}{
		{"missing", "", nil},
		{"mapping", `{"monthly":"b","daily":"a"}`, []string{"a", "b"}},
		{"list", `["x", 3, "", "y"]`, []string{"x", "y"}},
		{"garbage", `"nope"`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw []byte
			if tt.raw != "" {
				raw = []byte(tt.raw)
			}
			got := registryJobIDs(raw)
			if strings.Join(got, ",") != strings.Join(tt.expected, ",") {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestPushDailyGroupsBySession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	yesterday := fixedNow.AddDate(0, 0, -1)
	env.records.Append(ctx, newRecord("s1", "coffee", "4.5", "", fixedNow))
	env.records.Append(ctx, newRecord("s2", "tea", "3", "", fixedNow))
	env.records.Append(ctx, newRecord("s1", "lunch", "20", "", fixedNow))
	env.records.Append(ctx, newRecord("s3", "old", "1", "", yesterday))
	env.records.Append(ctx, newRecord(" ", "orphan", "1", "", fixedNow))

	if err := env.sync.PushDaily(ctx); err != nil {
		t.Fatalf("push daily: %v", err)
	}
	sent := env.sender.bySession()
	if len(sent) != 2 {
		t.Fatalf("expected pushes to two sessions, got %v", sent)
	}
	s1 := sent["s1"]
	if !strings.HasPrefix(s1, "🔔 每日账单推送\n统计区间：2026-03-15") {
		t.Fatalf("unexpected header: %s", s1)
	}
	if !strings.Contains(s1, "1. coffee - 4.50") || !strings.Contains(s1, "2. lunch - 20.00") {
		t.Fatalf("unexpected s1 push: %s", s1)
	}
	if !strings.Contains(sent["s2"], "💰 合计：3.00 元（共 1 笔）") {
		t.Fatalf("unexpected s2 push: %s", sent["s2"])
	}
}

func TestPushMonthlyContinuesAfterSendFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.sender.failFor = map[string]bool{"s1": true}
	env.records.Append(ctx, newRecord("s1", "coffee", "4.5", "", fixedNow))
	env.records.Append(ctx, newRecord("s2", "tea", "3", "", fixedNow.AddDate(0, 0, -10)))

	if err := env.sync.PushMonthly(ctx); err == nil {
		t.Fatalf("expected aggregated send error")
	}
	s2, ok := env.sender.bySession()["s2"]
	if !ok {
		t.Fatalf("expected s2 to receive its push despite s1 failing")
	}
	if !strings.HasPrefix(s2, "🔔 每月账单推送\n统计区间：2026-03-01 至 2026-03-31") {
		t.Fatalf("unexpected monthly push: %s", s2)
	}
}

func TestPushWithNoRecordsSendsNothing(t *testing.T) {
	env := newTestEnv(t)
	if err := env.sync.PushDaily(context.Background()); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(env.sender.sent) != 0 {
		t.Fatalf("expected no messages, got %v", env.sender.sent)
	}
}
