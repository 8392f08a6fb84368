package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 周期推进
// ============================================================================
//
// 所有日期统一表示为 UTC 零点的 time.Time，只携带"日历日"信息。
// 存储层读出来的日期（MySQL date / SQLite 文本）在使用前都先经过 DateOf 归一化，
// 避免时区换算导致的差一天问题。
//
// 【月末策略】按月/按年推进时，如果目标月份没有对应的日，取该月最后一天：
//   2024-01-31 +1月 -> 2024-02-29
//   2024-02-29 +1年 -> 2025-02-28
// 每次推进都以当前日期为起点，所以被截断过的日期之后会停留在较小的日上。
//
// ============================================================================

// Frequency 周期类型
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const DateLayout = "2006-01-02"

// Valid 是否为支持的周期
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// ParseFrequency 解析周期字符串（忽略大小写和首尾空白）
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unsupported frequency %q", s)
	}
	return f, nil
}

// Advance 返回 d 之后的下一个周期日期
func Advance(d time.Time, f Frequency) time.Time {
	d = DateOf(d)
	switch f {
	case Daily:
		return d.AddDate(0, 0, 1)
	case Weekly:
		return d.AddDate(0, 0, 7)
	case Monthly:
		return addMonthsClamped(d, 1)
	case Yearly:
		return addMonthsClamped(d, 12)
	default:
		return d
	}
}

func addMonthsClamped(d time.Time, months int) time.Time {
	year, month, day := d.Date()

	total := int(month) - 1 + months
	year += total / 12
	month = time.Month(total%12 + 1)

	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateOf 取 t 在其自身时区下的日历日，返回该日 UTC 零点
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today 返回 now 在 loc 时区下的日历日
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

// ParseDate 解析 YYYY-MM-DD 或 RFC3339 格式的日期
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// FormatDate 格式化为 YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// MonthBounds 返回 t 所在月份的第一天和最后一天
func MonthBounds(t time.Time) (time.Time, time.Time) {
	y, m, _ := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}

var (
	dailyFactor  = decimal.NewFromInt(30)
	weeklyFactor = decimal.RequireFromString("4.33")
	monthsInYear = decimal.NewFromInt(12)
)

// MonthlyEquivalent 把一个周期金额折算为月度金额
// 按天按 30 天/月、按周按 4.33 周/月估算
func MonthlyEquivalent(amount decimal.Decimal, f Frequency) decimal.Decimal {
	switch f {
	case Daily:
		return amount.Mul(dailyFactor)
	case Weekly:
		return amount.Mul(weeklyFactor)
	case Yearly:
		return amount.Div(monthsInYear)
	default:
		return amount
	}
}
