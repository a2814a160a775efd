package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"proxypool/internal/database"
	"proxypool/internal/domain"
)

const (
	archiveFlushInterval  = 15 * time.Second
	archiveBatchThreshold = 5000
	archiveInsertTimeout  = 30 * time.Second
	archiveInsertBatch    = 1000
)

var (
	probeStatisticQueue = make(chan domain.ProbeStatistic, 100_000)
	archiveFlushTracker sync.WaitGroup
)

// RecordProbeStatistic offers one probe outcome to the archive. It never
// blocks the prober: when the buffer is full the outcome is dropped, the
// archive is best-effort history.
func RecordProbeStatistic(stat domain.ProbeStatistic) {
	select {
	case probeStatisticQueue <- stat:
	default:
		log.Debug("probe archive buffer full, dropping outcome", "proxy", stat.ProxyKey)
	}
}

// StartProbeArchiveRoutine drains the probe outcome buffer into Postgres
// in batches, flushing on a timer or when the threshold is reached.
// Inserts run on their own goroutines with their own timeout so a slow
// database never stalls probing.
func StartProbeArchiveRoutine(ctx context.Context, db *gorm.DB) {
	var buffer []domain.ProbeStatistic
	timer := time.NewTimer(archiveFlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			drainProbeStatisticQueue(&buffer)
			flushProbeStatistics(db, &buffer)
			archiveFlushTracker.Wait()
			return
		case stat := <-probeStatisticQueue:
			buffer = append(buffer, stat)
			if len(buffer) >= archiveBatchThreshold {
				flushProbeStatistics(db, &buffer)
				resetFlushTimer(timer)
			}
		case <-timer.C:
			flushProbeStatistics(db, &buffer)
			timer.Reset(archiveFlushInterval)
		}
	}
}

func flushProbeStatistics(db *gorm.DB, buffer *[]domain.ProbeStatistic) {
	if len(*buffer) == 0 {
		return
	}

	toInsert := *buffer
	*buffer = nil

	archiveFlushTracker.Add(1)
	go func(stats []domain.ProbeStatistic) {
		defer archiveFlushTracker.Done()

		dbCtx, cancel := context.WithTimeout(context.Background(), archiveInsertTimeout)
		defer cancel()

		if err := database.InsertProbeStatistics(dbCtx, db, stats, archiveInsertBatch); err != nil {
			log.Error("failed to archive probe statistics", "error", err, "count", len(stats))
		}
	}(toInsert)
}

func drainProbeStatisticQueue(buffer *[]domain.ProbeStatistic) {
	for {
		select {
		case stat := <-probeStatisticQueue:
			*buffer = append(*buffer, stat)
		default:
			return
		}
	}
}

func resetFlushTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(archiveFlushInterval)
}
