package stats

import (
	"context"
	"time"

	libdbg "github.com/Megallm/ultrabalancer-sub000/database/gorm"
	liblog "github.com/Megallm/ultrabalancer-sub000/logger"
)

// BackendSample is one persisted backend stats row. Persistence is
// strictly additive observability: core routing state never reads it
// back.
type BackendSample struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	SampledAt        time.Time `gorm:"index"`
	BackendAddr      string    `gorm:"index;size:255"`
	Role             string    `gorm:"size:16"`
	Healthy          bool
	ActiveConns      int64
	TotalConns       int64
	FailedConns      int64
	ResponseTimeNS   int64
	ReplicationLagMS int64
}

// Sink periodically writes backend snapshots to a configured MySQL or
// PostgreSQL store through the gorm wrapper.
type Sink struct {
	db        libdbg.Database
	collector *Collector
	log       liblog.FuncLog
	interval  time.Duration
}

// NewSink opens the store from cfg and migrates the sample table.
func NewSink(cfg *libdbg.Config, c *Collector, log liblog.FuncLog, interval time.Duration) (*Sink, error) {
	db, err := libdbg.New(cfg)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if e := db.GetDB().AutoMigrate(&BackendSample{}); e != nil {
		db.Close()
		return nil, e
	}
	return &Sink{db: db, collector: c, log: log, interval: interval}, nil
}

// Run writes one snapshot per interval until ctx is cancelled.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.db.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *Sink) flush() {
	snap := s.collector.Collect()
	rows := make([]BackendSample, 0, len(snap.Backends))
	for _, b := range snap.Backends {
		rows = append(rows, BackendSample{
			SampledAt:        snap.Timestamp,
			BackendAddr:      b.Addr,
			Role:             b.Role,
			Healthy:          b.Healthy,
			ActiveConns:      b.ActiveConns,
			TotalConns:       b.TotalConns,
			FailedConns:      b.FailedConns,
			ResponseTimeNS:   b.ResponseTimeNS,
			ReplicationLagMS: b.ReplicationLagMS,
		})
	}
	if len(rows) == 0 {
		return
	}
	if err := s.db.GetDB().Create(&rows).Error; err != nil && s.log != nil {
		s.log().Error("stats sink: persist snapshot failed: %v", err)
	}
}
