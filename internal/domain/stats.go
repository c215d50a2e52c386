package domain

import "time"

// DailyCount разреженная точка тренда, как ее вернул store.
type DailyCount struct {
	Day   time.Time
	Count int64
}

// SourceTable: таблица, найденная discovery по соглашению об именах.
// Флаги говорят, какие необязательные колонки в ней есть.
type SourceTable struct {
	Name       string `json:"name"`
	HasAppKey  bool   `json:"hasAppKey"`
	HasUpdated bool   `json:"hasUpdated"`
}

// CredentialRow строка credential из одной таблицы (до слияния).
// Rank: порядковый номер таблицы в выдаче discovery.
type CredentialRow struct {
	Rank         int
	CredentialID string
	AppKey       *string
	UpdatedAt    *time.Time
}

// CredentialSummary элемент списка известных credential.
type CredentialSummary struct {
	CredentialID string     `json:"credentialId"`
	AppKey       *string    `json:"appKey"`
	LastSeenAt   *time.Time `json:"lastSeenAt"`
}
