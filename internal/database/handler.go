// Package database holds the optional Postgres archive of probe
// outcomes. The pool itself lives entirely in Redis; this archive only
// records history for offline analysis and is disabled when no DSN is
// configured.
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"proxypool/internal/domain"
)

const (
	maxOpenConns    = 16
	maxIdleConns    = 4
	connMaxLifetime = time.Hour
)

func Setup(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := db.AutoMigrate(&domain.ProbeStatistic{}); err != nil {
		return nil, fmt.Errorf("database: migrate probe statistics: %w", err)
	}
	return db, nil
}

// InsertProbeStatistics writes one flushed buffer of probe outcomes in
// batches sized to stay under the driver's parameter limit.
func InsertProbeStatistics(ctx context.Context, db *gorm.DB, stats []domain.ProbeStatistic, batchSize int) error {
	if len(stats) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	if err := db.WithContext(ctx).CreateInBatches(stats, batchSize).Error; err != nil {
		return fmt.Errorf("database: insert probe statistics: %w", err)
	}
	return nil
}
