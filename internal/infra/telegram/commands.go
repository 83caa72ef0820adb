// internal/infra/telegram/commands.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bookkeeper_bot/internal/app"
	"bookkeeper_bot/internal/domain/chat"
	"bookkeeper_bot/internal/domain/schedule"

	"github.com/sirupsen/logrus"
)

const helpText = `📒 记账助手命令列表：

📊 查询类：
  /book today              - 查看今日账单
  /book month              - 查看本月账单
  /book range <起始> <结束> - 查看指定日期范围账单
  /book summary            - 查看本月分类汇总

✏️ 记录管理：
  /book del <序号>          - 删除今日指定记录
  /book del month <序号>    - 删除本月指定记录

⚙️ 管理命令（需管理员权限）：
  /book auto <on|off>                   - AI自动记账开关
  /book daily <on|off> [HH:MM]          - 每日定时账单
  /book monthly <on|off> [天] [HH:MM]   - 每月定时账单
  /book tz <时区|system>                - 设置时区
  /book status                          - 查看插件状态

👥 白名单管理（需管理员权限）：
  /book wl on|off                       - 白名单开关
  /book wl add <用户ID>                 - 添加白名单
  /book wl del <用户ID>                 - 移除白名单
  /book wl ls                           - 查看白名单`

const (
	replyNotAllowed    = "⚠️ 白名单校验未通过，无法使用此功能。"
	replyAdminOnly     = "⛔ 此命令需要管理员权限。"
	replyFailed        = "❌ 操作失败，请稍后再试。"
	replyUnknown       = "❓ 未知命令，使用 /book help 查看可用命令。"
	replyInvalidTime   = "❌ 时间格式无效，请使用 HH:MM 格式。"
	replyInvalidDay    = "❌ 天数无效，请输入 1-31 的整数。"
	replyDayOutOfRange = "❌ 天数超出范围，请输入 1-31。"
)

// BookCommands turns /book arguments into replies. It holds no Telegram state,
// so every subcommand can be driven directly from tests.
type BookCommands struct {
	svc    *app.BookkeeperService
	logger *logrus.Entry
}

func NewBookCommands(svc *app.BookkeeperService, logger *logrus.Entry) *BookCommands {
	return &BookCommands{svc: svc, logger: logger}
}

// Dispatch runs the subcommand named by args[0] and returns the reply text.
func (b *BookCommands) Dispatch(ctx context.Context, ev chat.Event, args []string) string {
	if len(args) == 0 {
		return helpText
	}
	sub := strings.ToLower(args[0])
	rest := args[1:]
	logCtx := b.logger.WithFields(logrus.Fields{
		"subcommand": sub,
		"sender_id":  ev.SenderID,
		"session":    ev.Session,
	})
	logCtx.Debug("Processing /book command")

	switch sub {
	case "help":
		return helpText
	case "today":
		return b.textOrError(logCtx, func() (string, error) { return b.svc.TodayBill(ctx, ev) })
	case "month":
		return b.textOrError(logCtx, func() (string, error) { return b.svc.MonthBill(ctx, ev) })
	case "summary":
		return b.textOrError(logCtx, func() (string, error) { return b.svc.MonthSummary(ctx, ev) })
	case "range":
		return b.rangeBill(ctx, logCtx, ev, rest)
	case "del":
		return b.deleteRecord(ctx, logCtx, ev, rest)
	}

	if !adminSubcommands[sub] {
		return replyUnknown
	}
	if !ev.IsAdmin {
		logCtx.Warn("Unauthorized access attempt")
		return replyAdminOnly
	}
	switch sub {
	case "status":
		return b.textOrError(logCtx, func() (string, error) { return b.svc.Status(ev) })
	case "auto":
		return b.setAutoExtract(ctx, logCtx, ev, rest)
	case "daily":
		return b.setDaily(ctx, logCtx, ev, rest)
	case "monthly":
		return b.setMonthly(ctx, logCtx, ev, rest)
	case "tz":
		return b.setTimezone(ctx, logCtx, ev, rest)
	case "wl":
		return b.whitelist(ctx, logCtx, ev, rest)
	}
	return replyUnknown
}

var adminSubcommands = map[string]bool{
	"status": true, "auto": true, "daily": true, "monthly": true, "tz": true, "wl": true,
}

func (b *BookCommands) textOrError(logCtx *logrus.Entry, fn func() (string, error)) string {
	text, err := fn()
	if err != nil {
		return replyForError(logCtx, err)
	}
	return text
}

func (b *BookCommands) rangeBill(ctx context.Context, logCtx *logrus.Entry, ev chat.Event, args []string) string {
	if !b.svc.IsAllowed(ev) {
		return replyNotAllowed
	}
	if len(args) < 2 {
		return "用法：/book range <起始日期> <结束日期>\n日期格式：YYYY-MM-DD"
	}
	return b.textOrError(logCtx, func() (string, error) { return b.svc.RangeBill(ctx, ev, args[0], args[1]) })
}

func (b *BookCommands) deleteRecord(ctx context.Context, logCtx *logrus.Entry, ev chat.Event, args []string) string {
	if !b.svc.IsAllowed(ev) {
		return replyNotAllowed
	}
	scope := app.ScopeToday
	if len(args) > 0 && strings.EqualFold(args[0], "month") {
		scope = app.ScopeMonth
		args = args[1:]
	}
	if len(args) == 0 || args[0] == "" {
		return "用法：/book del <序号> 或 /book del month <序号>"
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return "❌ 序号必须是整数。"
	}

	deleted, err := b.svc.DeleteByIndex(ctx, ev, scope, index)
	var rangeErr *app.IndexOutOfRangeError
	switch {
	case err == nil:
		return fmt.Sprintf("✅ 已删除%s第 %d 条记录：%s - %s",
			scope.Label(), index, deleted.Item, deleted.Amount.StringFixed(2))
	case errors.Is(err, app.ErrInvalidIndex):
		return "❌ 序号必须大于 0。"
	case errors.Is(err, app.ErrNoRecords):
		return fmt.Sprintf("📋 %s暂无记录可删除。", scope.Label())
	case errors.As(err, &rangeErr):
		return fmt.Sprintf("❌ 序号超出范围，%s共 %d 条记录。", scope.Label(), rangeErr.Count)
	case errors.Is(err, app.ErrRecordGone):
		return "❌ 删除失败，记录可能已被移除。"
	}
	return replyForError(logCtx, err)
}

func (b *BookCommands) setAutoExtract(ctx context.Context, logCtx *logrus.Entry, ev chat.Event, args []string) string {
	enabled, ok := switchArg(args)
	if !ok {
		return "用法：/book auto <on|off>"
	}
	if err := b.svc.SetAutoExtract(ctx, ev, enabled); err != nil {
		return replyForError(logCtx, err)
	}
	return fmt.Sprintf("✅ AI 自动记账已%s。", onOff(enabled))
}

func (b *BookCommands) setDaily(ctx context.Context, logCtx *logrus.Entry, ev chat.Event, args []string) string {
	enabled, ok := switchArg(args)
	if !ok {
		return "用法：/book daily <on|off> [HH:MM]"
	}
	var reportTime string
	if len(args) > 1 {
		reportTime = args[1]
	}
	updated, err := b.svc.SetDaily(ctx, ev, enabled, reportTime)
	if err != nil {
		return replyForError(logCtx, err)
	}
	return fmt.Sprintf("✅ 每日账单已%s，推送时间：%s", onOff(enabled), updated.DailyReportTime)
}

func (b *BookCommands) setMonthly(ctx context.Context, logCtx *logrus.Entry, ev chat.Event, args []string) string {
	enabled, ok := switchArg(args)
	if !ok {
		return "用法：/book monthly <on|off> [天] [HH:MM]"
	}
	updated, err := b.svc.SetMonthly(ctx, ev, enabled, args[1:]...)
	if err != nil {
		return replyForError(logCtx, err)
	}
	return fmt.Sprintf("✅ 每月账单已%s，每月 %d 号 %s 推送",
		onOff(enabled), updated.MonthlyReportDay, updated.MonthlyReportTime)
}

func (b *BookCommands) setTimezone(ctx context.Context, logCtx *logrus.Entry, ev chat.Event, args []string) string {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		current, err := b.svc.Timezone(ev)
		if err != nil {
			return replyForError(logCtx, err)
		}
		if current == "" {
			current = "系统默认"
		}
		return "📍 当前时区：" + current
	}
	name := strings.TrimSpace(args[0])
	if err := b.svc.SetTimezone(ctx, ev, name); err != nil {
		return replyForError(logCtx, err)
	}
	if strings.EqualFold(name, "system") {
		return "✅ 时区已重置为系统默认时区。"
	}
	return "✅ 时区已设置为 " + name
}

func (b *BookCommands) whitelist(ctx context.Context, logCtx *logrus.Entry, ev chat.Event, args []string) string {
	const usage = "用法：/book wl on|off|add <用户ID>|del <用户ID>|ls"
	if len(args) == 0 {
		return usage
	}
	switch strings.ToLower(args[0]) {
	case "on", "off":
		enabled := strings.EqualFold(args[0], "on")
		if err := b.svc.SetWhitelist(ctx, ev, enabled); err != nil {
			return replyForError(logCtx, err)
		}
		return fmt.Sprintf("✅ 白名单已%s。", onOff(enabled))
	case "add":
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			return "用法：/book wl add <用户ID>"
		}
		userID := strings.TrimSpace(args[1])
		err := b.svc.WhitelistAdd(ctx, ev, userID)
		if errors.Is(err, app.ErrAlreadyWhitelisted) {
			return fmt.Sprintf("⚠️ 用户 %s 已在白名单中。", userID)
		}
		if err != nil {
			return replyForError(logCtx, err)
		}
		return fmt.Sprintf("✅ 用户 %s 已添加到白名单。", userID)
	case "del":
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			return "用法：/book wl del <用户ID>"
		}
		userID := strings.TrimSpace(args[1])
		err := b.svc.WhitelistRemove(ctx, ev, userID)
		if errors.Is(err, app.ErrNotWhitelisted) {
			return fmt.Sprintf("⚠️ 用户 %s 不在白名单中。", userID)
		}
		if err != nil {
			return replyForError(logCtx, err)
		}
		return fmt.Sprintf("✅ 用户 %s 已从白名单移除。", userID)
	case "ls":
		ids, err := b.svc.WhitelistList(ev)
		if err != nil {
			return replyForError(logCtx, err)
		}
		if len(ids) == 0 {
			return "📋 白名单为空。"
		}
		lines := []string{"📋 白名单用户列表："}
		for i, id := range ids {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, id))
		}
		return strings.Join(lines, "\n")
	}
	return usage
}

// replyForError maps service errors to user-facing text. Unknown errors are
// logged and answered generically.
func replyForError(logCtx *logrus.Entry, err error) string {
	switch {
	case errors.Is(err, app.ErrNotAllowed):
		return replyNotAllowed
	case errors.Is(err, app.ErrAdminNotAuthorized):
		return replyAdminOnly
	case errors.Is(err, schedule.ErrInvalidTime):
		return replyInvalidTime
	case errors.Is(err, app.ErrInvalidDay):
		return replyInvalidDay
	case errors.Is(err, schedule.ErrDayOutOfRange):
		return replyDayOutOfRange
	case errors.Is(err, app.ErrInvalidTimezone):
		return "❌ 无效时区，请使用 IANA 时区格式，例如 Asia/Shanghai。"
	case errors.Is(err, app.ErrInvalidDate):
		return "❌ 日期格式无效，请使用 YYYY-MM-DD 格式。"
	case errors.Is(err, app.ErrRangeInverted):
		return "❌ 起始日期不能晚于结束日期。"
	}
	logCtx.WithError(err).Error("Command failed")
	return replyFailed
}

func switchArg(args []string) (bool, bool) {
	if len(args) == 0 {
		return false, false
	}
	return app.ParseSwitch(args[0])
}

func onOff(enabled bool) string {
	if enabled {
		return "开启"
	}
	return "关闭"
}
