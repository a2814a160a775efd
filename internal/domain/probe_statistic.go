package domain

import "time"

// ProbeStatistic is one archived probe outcome. Rows are buffered by the
// runtime pump and flushed to Postgres in batches when archiving is
// enabled; the pool itself never reads them back.
type ProbeStatistic struct {
	ID             uint64   `gorm:"primaryKey;autoIncrement"`
	ProxyKey       string   `gorm:"size:21;not null;index"`
	Protocol       Protocol `gorm:"size:6;not null"`
	Alive          bool     `gorm:"not null"`
	ResponseTimeMS int32    `gorm:"not null"`
	StatusCode     int16
	Country        string    `gorm:"size:56"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index"`
}
