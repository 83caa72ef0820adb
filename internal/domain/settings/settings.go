package settings

import (
	"encoding/json"
	"strings"
)

// Settings is the flat option table administrators change from chat.
type Settings struct {
	AutoExtractEnabled   bool     `json:"auto_extract_enabled"`
	WhitelistEnabled     bool     `json:"whitelist_enabled"`
	WhitelistAdminBypass bool     `json:"whitelist_admin_bypass"`
	WhitelistUserIDs     []string `json:"whitelist_user_ids"`
	MaxRecords           int      `json:"max_records"`
	MaxReportItems       int      `json:"max_report_items"`
	CurrencySymbol       string   `json:"currency_symbol"`
	DailyReportEnabled   bool     `json:"daily_report_enabled"`
	DailyReportTime      string   `json:"daily_report_time"`
	MonthlyReportEnabled bool     `json:"monthly_report_enabled"`
	MonthlyReportDay     int      `json:"monthly_report_day"`
	MonthlyReportTime    string   `json:"monthly_report_time"`
	ScheduleTimezone     string   `json:"schedule_timezone"` // IANA name, empty means system timezone
}

// Defaults returns the option table before any administrator change.
func Defaults() Settings {
	return Settings{
		AutoExtractEnabled:   true,
		WhitelistEnabled:     false,
		WhitelistAdminBypass: true,
		WhitelistUserIDs:     []string{},
		MaxRecords:           5000,
		MaxReportItems:       100,
		CurrencySymbol:       "元",
		DailyReportEnabled:   false,
		DailyReportTime:      "21:30",
		MonthlyReportEnabled: false,
		MonthlyReportDay:     1,
		MonthlyReportTime:    "21:30",
		ScheduleTimezone:     "",
	}
}

// Decode overlays a persisted JSON document on base. Keys missing from data keep
// the value from base.
func Decode(data []byte, base Settings) (Settings, error) {
	s := base.Clone()
	if err := json.Unmarshal(data, &s); err != nil {
		return base, err
	}
	return s.Normalized(), nil
}

// Clone returns a copy that shares no slices with s.
func (s Settings) Clone() Settings {
	out := s
	out.WhitelistUserIDs = append([]string{}, s.WhitelistUserIDs...)
	return out
}

// Normalized clamps numeric floors and drops blank whitelist entries.
func (s Settings) Normalized() Settings {
	out := s.Clone()
	if out.MaxRecords < 1 {
		out.MaxRecords = 1
	}
	if out.MaxReportItems < 1 {
		out.MaxReportItems = 1
	}
	ids := make([]string, 0, len(out.WhitelistUserIDs))
	for _, id := range out.WhitelistUserIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	out.WhitelistUserIDs = ids
	out.ScheduleTimezone = strings.TrimSpace(out.ScheduleTimezone)
	return out
}
