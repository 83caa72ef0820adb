// internal/app/bookkeeper_service.go
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bookkeeper_bot/internal/domain/access"
	"bookkeeper_bot/internal/domain/chat"
	"bookkeeper_bot/internal/domain/expense"
	"bookkeeper_bot/internal/domain/schedule"
	"bookkeeper_bot/internal/domain/settings"

	"github.com/sirupsen/logrus"
)

// DeleteScope selects which records a delete index refers to.
type DeleteScope int

const (
	ScopeToday DeleteScope = iota
	ScopeMonth
)

// Label is the user-facing name of the scope.
func (s DeleteScope) Label() string {
	if s == ScopeMonth {
		return "本月"
	}
	return "今日"
}

// BookkeeperService implements the chat command surface and the tool entry point.
type BookkeeperService struct {
	records  *RecordStore
	settings *SettingsStore
	sync     *ScheduleSynchronizer
	clock    *Clock
	logger   *logrus.Entry
}

func NewBookkeeperService(
	records *RecordStore,
	settingsStore *SettingsStore,
	sync *ScheduleSynchronizer,
	clock *Clock,
	logger *logrus.Entry,
) *BookkeeperService {
	return &BookkeeperService{
		records:  records,
		settings: settingsStore,
		sync:     sync,
		clock:    clock,
		logger:   logger,
	}
}

// IsAllowed applies the whitelist gate to the sender of ev.
func (s *BookkeeperService) IsAllowed(ev chat.Event) bool {
	cfg := s.settings.Get()
	return access.IsAllowed(ev.SenderID, ev.IsAdmin, cfg.WhitelistEnabled, cfg.WhitelistAdminBypass, cfg.WhitelistUserIDs)
}

// AutoExtractActive reports whether messages from ev should be offered to the language model.
func (s *BookkeeperService) AutoExtractActive(ev chat.Event) bool {
	return s.settings.Get().AutoExtractEnabled && s.IsAllowed(ev)
}

// Today returns the current calendar date in the configured timezone.
func (s *BookkeeperService) Today() time.Time {
	return s.clock.Today()
}

// AddExpense is the language model tool entry point. It never fails: every
// outcome is a short confirmation or skip reason for the model.
func (s *BookkeeperService) AddExpense(ctx context.Context, ev chat.Event, item, amount, note string) string {
	if !s.settings.Get().AutoExtractEnabled {
		return "Bookkeeping skipped: auto_extract_enabled is off."
	}
	if !s.IsAllowed(ev) {
		return "Bookkeeping skipped: sender is not allowed by whitelist."
	}
	senderID := strings.TrimSpace(ev.SenderID)
	session := strings.TrimSpace(ev.Session)
	if senderID == "" || session == "" {
		return "Bookkeeping skipped: missing sender or session."
	}
	cleanItem := expense.NormalizeItem(item)
	if cleanItem == "" {
		return "Bookkeeping skipped: item is empty."
	}
	cleanAmount, err := expense.NormalizeAmount(amount)
	if err != nil {
		return fmt.Sprintf("Bookkeeping skipped: invalid amount (%v).", err)
	}

	now := s.clock.Now()
	rec := expense.Record{
		Session:         session,
		SenderID:        senderID,
		SenderName:      strings.TrimSpace(ev.SenderName),
		Item:            cleanItem,
		Amount:          cleanAmount,
		Note:            strings.TrimSpace(note),
		Date:            expense.FormatDate(now),
		Timestamp:       now,
		SourceMessageID: ev.MessageID,
	}
	ok, reason, err := s.records.Append(ctx, rec)
	if err != nil {
		s.logger.WithError(err).WithField("session", session).Error("Failed to append expense record")
		return "Bookkeeping failed: storage error."
	}
	if !ok {
		return reason
	}
	return fmt.Sprintf("Saved: %s %s", cleanItem, formatAmount(cleanAmount))
}

// TodayBill renders the session's bill for the current day.
func (s *BookkeeperService) TodayBill(ctx context.Context, ev chat.Event) (string, error) {
	if !s.IsAllowed(ev) {
		return "", ErrNotAllowed
	}
	today := s.clock.Today()
	records, err := s.records.Query(ctx, ev.Session, today, today.AddDate(0, 0, 1))
	if err != nil {
		return "", err
	}
	return s.renderer().RenderBill("📅 今日账单", expense.FormatDate(today), records), nil
}

// MonthBill renders the session's bill for the current month.
func (s *BookkeeperService) MonthBill(ctx context.Context, ev chat.Event) (string, error) {
	if !s.IsAllowed(ev) {
		return "", ErrNotAllowed
	}
	start, end := MonthRange(s.clock.Today())
	records, err := s.records.Query(ctx, ev.Session, start, end)
	if err != nil {
		return "", err
	}
	return s.renderer().RenderBill("📅 本月账单", PeriodLabel(start, end), records), nil
}

// RangeBill renders the session's bill between two inclusive YYYY-MM-DD dates.
func (s *BookkeeperService) RangeBill(ctx context.Context, ev chat.Event, startRaw, endRaw string) (string, error) {
	if !s.IsAllowed(ev) {
		return "", ErrNotAllowed
	}
	start, errStart := expense.ParseDate(strings.TrimSpace(startRaw))
	end, errEnd := expense.ParseDate(strings.TrimSpace(endRaw))
	if errStart != nil || errEnd != nil {
		return "", ErrInvalidDate
	}
	if start.After(end) {
		return "", ErrRangeInverted
	}
	endExclusive := end.AddDate(0, 0, 1)
	records, err := s.records.Query(ctx, ev.Session, start, endExclusive)
	if err != nil {
		return "", err
	}
	return s.renderer().RenderBill("📅 自定义日期账单", PeriodLabel(start, endExclusive), records), nil
}

// MonthSummary renders the per-item summary of the current month.
func (s *BookkeeperService) MonthSummary(ctx context.Context, ev chat.Event) (string, error) {
	if !s.IsAllowed(ev) {
		return "", ErrNotAllowed
	}
	start, end := MonthRange(s.clock.Today())
	records, err := s.records.Query(ctx, ev.Session, start, end)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return fmt.Sprintf("📊 本月分类汇总\n统计区间：%s\n暂无记录。", PeriodLabel(start, end)), nil
	}
	return s.renderer().RenderSummary(records, start, end), nil
}

// DeleteByIndex removes the index-th (1-based) record of the session within scope,
// counted in bill order.
func (s *BookkeeperService) DeleteByIndex(ctx context.Context, ev chat.Event, scope DeleteScope, index int) (expense.Record, error) {
	if !s.IsAllowed(ev) {
		return expense.Record{}, ErrNotAllowed
	}
	if index < 1 {
		return expense.Record{}, ErrInvalidIndex
	}
	today := s.clock.Today()
	start, end := today, today.AddDate(0, 0, 1)
	if scope == ScopeMonth {
		start, end = MonthRange(today)
	}
	records, err := s.records.Query(ctx, ev.Session, start, end)
	if err != nil {
		return expense.Record{}, err
	}
	if len(records) == 0 {
		return expense.Record{}, ErrNoRecords
	}
	if index > len(records) {
		return expense.Record{}, &IndexOutOfRangeError{Index: index, Count: len(records)}
	}

	target := records[index-1]
	deleted, err := s.records.Delete(ctx, target)
	if err != nil {
		return expense.Record{}, err
	}
	if !deleted {
		return expense.Record{}, ErrRecordGone
	}
	s.logger.WithFields(logrus.Fields{
		"item":    target.Item,
		"amount":  formatAmount(target.Amount),
		"session": ev.Session,
	}).Info("Expense record deleted")
	return target, nil
}

// Status renders the current settings for administrators.
func (s *BookkeeperService) Status(ev chat.Event) (string, error) {
	if !ev.IsAdmin {
		return "", ErrAdminNotAuthorized
	}
	cfg := s.settings.Get()
	tz := cfg.ScheduleTimezone
	if tz == "" {
		tz = "系统默认"
	}
	return strings.Join([]string{
		"📊 记账助手状态：",
		"",
		"  AI 自动记账：" + stateLabel(cfg.AutoExtractEnabled),
		"  白名单：" + stateLabel(cfg.WhitelistEnabled),
		fmt.Sprintf("  白名单用户数：%d", len(cfg.WhitelistUserIDs)),
		fmt.Sprintf("  每日账单：%s，时间：%s", stateLabel(cfg.DailyReportEnabled), cfg.DailyReportTime),
		fmt.Sprintf("  每月账单：%s，每月 %d 号 %s", stateLabel(cfg.MonthlyReportEnabled), cfg.MonthlyReportDay, cfg.MonthlyReportTime),
		"  时区：" + tz,
	}, "\n"), nil
}

// SetAutoExtract toggles automatic tool-triggered recording.
func (s *BookkeeperService) SetAutoExtract(ctx context.Context, ev chat.Event, enabled bool) error {
	if !ev.IsAdmin {
		return ErrAdminNotAuthorized
	}
	_, err := s.settings.Update(ctx, func(cfg *settings.Settings) {
		cfg.AutoExtractEnabled = enabled
	})
	return err
}

// SetDaily toggles the daily push and optionally changes its time.
func (s *BookkeeperService) SetDaily(ctx context.Context, ev chat.Event, enabled bool, reportTime string) (settings.Settings, error) {
	if !ev.IsAdmin {
		return settings.Settings{}, ErrAdminNotAuthorized
	}
	reportTime = strings.TrimSpace(reportTime)
	if reportTime != "" {
		if _, _, err := schedule.ParseHHMM(reportTime); err != nil {
			return settings.Settings{}, err
		}
	}
	updated, err := s.settings.Update(ctx, func(cfg *settings.Settings) {
		if reportTime != "" {
			cfg.DailyReportTime = reportTime
		}
		cfg.DailyReportEnabled = enabled
	})
	if err != nil {
		return settings.Settings{}, err
	}
	return updated, s.resync(ctx)
}

// SetMonthly toggles the monthly push. Up to two optional arguments follow: a day
// and a time, or just a time (recognised by its colon).
func (s *BookkeeperService) SetMonthly(ctx context.Context, ev chat.Event, enabled bool, args ...string) (settings.Settings, error) {
	if !ev.IsAdmin {
		return settings.Settings{}, ErrAdminNotAuthorized
	}
	current := s.settings.Get()
	day := current.MonthlyReportDay
	reportTime := current.MonthlyReportTime

	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		arg := strings.TrimSpace(args[0])
		if strings.Contains(arg, ":") {
			reportTime = arg
		} else {
			n, err := strconv.Atoi(arg)
			if err != nil {
				return settings.Settings{}, ErrInvalidDay
			}
			day = n
		}
	}
	if len(args) > 1 && strings.TrimSpace(args[1]) != "" {
		reportTime = strings.TrimSpace(args[1])
	}
	if day < 1 || day > 31 {
		return settings.Settings{}, schedule.ErrDayOutOfRange
	}
	if _, _, err := schedule.ParseHHMM(reportTime); err != nil {
		return settings.Settings{}, err
	}

	updated, err := s.settings.Update(ctx, func(cfg *settings.Settings) {
		cfg.MonthlyReportEnabled = enabled
		cfg.MonthlyReportDay = day
		cfg.MonthlyReportTime = reportTime
	})
	if err != nil {
		return settings.Settings{}, err
	}
	return updated, s.resync(ctx)
}

// Timezone returns the configured schedule timezone name, empty for the system default.
func (s *BookkeeperService) Timezone(ev chat.Event) (string, error) {
	if !ev.IsAdmin {
		return "", ErrAdminNotAuthorized
	}
	return s.settings.Get().ScheduleTimezone, nil
}

// SetTimezone sets the IANA timezone used for dates and schedules; "system" resets it.
func (s *BookkeeperService) SetTimezone(ctx context.Context, ev chat.Event, name string) error {
	if !ev.IsAdmin {
		return ErrAdminNotAuthorized
	}
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "system") {
		name = ""
	} else if !ValidTimezone(name) {
		return ErrInvalidTimezone
	}
	if _, err := s.settings.Update(ctx, func(cfg *settings.Settings) {
		cfg.ScheduleTimezone = name
	}); err != nil {
		return err
	}
	return s.resync(ctx)
}

// SetWhitelist toggles the whitelist gate.
func (s *BookkeeperService) SetWhitelist(ctx context.Context, ev chat.Event, enabled bool) error {
	if !ev.IsAdmin {
		return ErrAdminNotAuthorized
	}
	_, err := s.settings.Update(ctx, func(cfg *settings.Settings) {
		cfg.WhitelistEnabled = enabled
	})
	return err
}

// WhitelistAdd appends userID to the whitelist.
func (s *BookkeeperService) WhitelistAdd(ctx context.Context, ev chat.Event, userID string) error {
	if !ev.IsAdmin {
		return ErrAdminNotAuthorized
	}
	userID = strings.TrimSpace(userID)
	_, err := s.settings.Apply(ctx, func(cfg *settings.Settings) error {
		ids, added := access.Add(cfg.WhitelistUserIDs, userID)
		if !added {
			return ErrAlreadyWhitelisted
		}
		cfg.WhitelistUserIDs = ids
		return nil
	})
	return err
}

// WhitelistRemove drops userID from the whitelist.
func (s *BookkeeperService) WhitelistRemove(ctx context.Context, ev chat.Event, userID string) error {
	if !ev.IsAdmin {
		return ErrAdminNotAuthorized
	}
	userID = strings.TrimSpace(userID)
	_, err := s.settings.Apply(ctx, func(cfg *settings.Settings) error {
		ids, removed := access.Remove(cfg.WhitelistUserIDs, userID)
		if !removed {
			return ErrNotWhitelisted
		}
		cfg.WhitelistUserIDs = ids
		return nil
	})
	return err
}

// WhitelistList returns the whitelist in insertion order.
func (s *BookkeeperService) WhitelistList(ev chat.Event) ([]string, error) {
	if !ev.IsAdmin {
		return nil, ErrAdminNotAuthorized
	}
	return s.settings.Get().WhitelistUserIDs, nil
}

func (s *BookkeeperService) resync(ctx context.Context) error {
	if s.sync == nil {
		return nil
	}
	if err := s.sync.Sync(ctx); err != nil {
		return fmt.Errorf("failed to resync scheduled jobs: %w", err)
	}
	return nil
}

func (s *BookkeeperService) renderer() Renderer {
	return NewRenderer(s.settings.Get())
}

func stateLabel(on bool) string {
	if on {
		return "✅ 开启"
	}
	return "❌ 关闭"
}

// ParseSwitch accepts on/off style words. The second result is false when raw
// is not recognised.
func ParseSwitch(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1", "yes", "enable", "enabled":
		return true, true
	case "off", "false", "0", "no", "disable", "disabled":
		return false, true
	}
	return false, false
}
