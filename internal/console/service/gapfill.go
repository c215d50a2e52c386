package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
)

const dayLayout = "2006-01-02"

// RangePolicy границы окна в днях.
type RangePolicy struct {
	Min     int
	Max     int
	Default int
}

// DefaultRangePolicy: окно 7..365 дней, 90 по умолчанию.
var DefaultRangePolicy = RangePolicy{Min: 7, Max: 365, Default: 90}

// Clamp разбирает ведущее целое ("12abc" -> 12, "7.9" -> 7) и зажимает его в [Min, Max].
// Нечисловой ввод дает Default.
func (p RangePolicy) Clamp(raw string) int {
	n, ok := leadingInt(raw)
	if !ok {
		return p.Default
	}
	switch {
	case n < int64(p.Min):
		return p.Min
	case n > int64(p.Max):
		return p.Max
	}
	return int(n)
}

// leadingInt: пробелы, знак, цифры; остальное отбрасывается.
func leadingInt(raw string) (int64, bool) {
	s := strings.TrimLeft(raw, " \t\r\n")

	sign := ""
	if s != "" && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.ParseInt(sign+s[:end], 10, 64)
	if err != nil {
		// переполнение: знак все равно определяет сторону зажима
		if sign == "-" {
			return -1 << 62, true
		}
		return 1 << 62, true
	}
	return n, true
}

// WindowStart now минус days суток (без учета календаря).
func WindowStart(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// FillDailyGaps строит плотный ряд ровно из days точек: от today-(days-1) до today (UTC) включительно.
// Точки из store сопоставляются по календарной дате UTC, отсутствующие дни дают 0.
func FillDailyGaps(points []domain.DailyCount, days int, now time.Time) []domain.TrendPoint {
	byDay := make(map[string]int64, len(points))
	for _, p := range points {
		byDay[p.Day.UTC().Format(dayLayout)] += p.Count
	}

	if days < 0 {
		days = 0
	}
	today := now.UTC()
	series := make([]domain.TrendPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		key := today.AddDate(0, 0, -i).Format(dayLayout)
		series = append(series, domain.TrendPoint{Date: key, Value: byDay[key]})
	}
	return series
}
