package domain

import "time"

// DashboardSummary: ответ агрегатора для одного credential.
type DashboardSummary struct {
	CredentialID     string             `json:"credentialId"`
	RangeDays        int                `json:"rangeDays"`
	FromDate         time.Time          `json:"fromDate"`
	ToDate           time.Time          `json:"toDate"`
	Metrics          []MetricValue      `json:"metrics"`          // KPI по всем метрикам реестра
	AvailableMetrics []MetricDescriptor `json:"availableMetrics"` // для селектора графика
	Trend            Trend              `json:"trend"`            // одна выбранная метрика
	Sources          []SourceCount      `json:"sources"`          // footprint интеграции
}

type MetricDescriptor struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type MetricValue struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value int64  `json:"value"`
}

type Trend struct {
	Key   string       `json:"key"`
	Label string       `json:"label"`
	Data  []TrendPoint `json:"data"`
}

// TrendPoint календарный день UTC (YYYY-MM-DD) и счетчик.
type TrendPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// SourceCount: число строк credential в одной синхронизированной таблице.
type SourceCount struct {
	Table string `json:"table"`
	Value int64  `json:"value"`
}

// SummaryRequest сырые параметры запроса; нормализуются в сервисе.
type SummaryRequest struct {
	CredentialID string
	MetricKey    string
	RangeDays    string
}
