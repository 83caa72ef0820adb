package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bookkeeper_bot/internal/domain/expense"
	"bookkeeper_bot/internal/domain/settings"

	"github.com/shopspring/decimal"
)

const unknownItem = "未知"

// Renderer formats record sets into bill and summary text.
type Renderer struct {
	MaxItems int
	Currency string
}

func NewRenderer(s settings.Settings) Renderer {
	return Renderer{MaxItems: s.MaxReportItems, Currency: s.CurrencySymbol}
}

// RenderBill lists up to MaxItems records and a total over all of them.
func (r Renderer) RenderBill(title, period string, records []expense.Record) string {
	if len(records) == 0 {
		return fmt.Sprintf("%s\n统计区间：%s\n暂无记录。", title, period)
	}
	maxItems := r.MaxItems
	if maxItems < 1 {
		maxItems = 1
	}

	lines := []string{title, "统计区间：" + period, ""}
	total := decimal.Zero
	for i, rec := range records {
		total = total.Add(rec.Amount)
		if i >= maxItems {
			continue
		}
		line := fmt.Sprintf("%d. %s - %s", i+1, itemLabel(rec.Item), formatAmount(rec.Amount))
		if name := strings.TrimSpace(rec.SenderName); name != "" {
			line += fmt.Sprintf(" (%s)", name)
		}
		lines = append(lines, line)
	}
	if len(records) > maxItems {
		lines = append(lines, fmt.Sprintf("... 另有 %d 条记录未显示", len(records)-maxItems))
	}
	lines = append(lines, "", r.totalLine(total, len(records)))
	return strings.Join(lines, "\n")
}

type itemGroup struct {
	item   string
	amount decimal.Decimal
	count  int
}

// RenderSummary groups records by item and ranks the groups by summed amount.
func (r Renderer) RenderSummary(records []expense.Record, start, endExclusive time.Time) string {
	var groups []*itemGroup
	index := make(map[string]*itemGroup)
	total := decimal.Zero
	for _, rec := range records {
		item := itemLabel(rec.Item)
		g, ok := index[item]
		if !ok {
			g = &itemGroup{item: item}
			index[item] = g
			groups = append(groups, g)
		}
		g.amount = g.amount.Add(rec.Amount)
		g.count++
		total = total.Add(rec.Amount)
	}
	// Stable: equal sums keep first-appearance order.
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].amount.GreaterThan(groups[j].amount)
	})

	lines := []string{"📊 本月分类汇总", "统计区间：" + PeriodLabel(start, endExclusive), ""}
	for i, g := range groups {
		lines = append(lines, fmt.Sprintf("%d. %s - %s (%d笔, %s%%)",
			i+1, g.item, formatAmount(g.amount), g.count, percentOf(g.amount, total)))
	}
	lines = append(lines, "", r.totalLine(total, len(records)))
	return strings.Join(lines, "\n")
}

func (r Renderer) totalLine(total decimal.Decimal, count int) string {
	return fmt.Sprintf("💰 合计：%s %s（共 %d 笔）", formatAmount(total), r.Currency, count)
}

func percentOf(part, total decimal.Decimal) string {
	if !total.IsPositive() {
		return "0.0"
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).StringFixed(1)
}

func itemLabel(item string) string {
	if item = strings.TrimSpace(item); item != "" {
		return item
	}
	return unknownItem
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
