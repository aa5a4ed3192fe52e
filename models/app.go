package models

import "time"

// App is a registered application the service backs up. The token is the
// shared secret presented as a Bearer token on backup calls and is never
// serialized in API responses.
type App struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"uniqueIndex;not null" json:"name"`
	BaseURL       string    `gorm:"not null" json:"url"`
	Token         string    `gorm:"not null" json:"-"`
	Schedule      string    `json:"schedule"`
	RemoteName    string    `gorm:"index" json:"remote"`
	RetainDaily   int       `json:"retain_daily"`
	RetainWeekly  int       `json:"retain_weekly"`
	RetainMonthly int       `json:"retain_monthly"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasRetention reports whether any retention granularity is configured.
func (a *App) HasRetention() bool {
	return a.RetainDaily > 0 || a.RetainWeekly > 0 || a.RetainMonthly > 0
}
