package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"pharmacy_backend/internal/repositories"
)

// StockSnapshotService periodically records the facility-wide total stock
// into the stock history table. It only reads batch data; it never
// participates in the inventory write path.
type StockSnapshotService interface {
	// SampleNow takes a snapshot for today's date immediately.
	SampleNow() error
	// Run samples once at startup and then on every tick of interval until
	// ctx is cancelled.
	Run(ctx context.Context, interval time.Duration)
}

type stockSnapshotService struct {
	historyRepo repositories.StockHistoryRepository
	now         func() time.Time
}

// NewStockSnapshotService creates a new instance of StockSnapshotService.
func NewStockSnapshotService(hr repositories.StockHistoryRepository) StockSnapshotService {
	return &stockSnapshotService{
		historyRepo: hr,
		now:         time.Now,
	}
}

func (s *stockSnapshotService) SampleNow() error {
	total, err := s.historyRepo.FacilityTotalStock()
	if err != nil {
		return fmt.Errorf("failed to read facility stock: %w", err)
	}
	day := s.now().Truncate(24 * time.Hour)
	if err := s.historyRepo.UpsertSnapshot(day, total); err != nil {
		return fmt.Errorf("failed to write stock snapshot: %w", err)
	}
	return nil
}

func (s *stockSnapshotService) Run(ctx context.Context, interval time.Duration) {
	if err := s.SampleNow(); err != nil {
		log.Error().Err(err).Msg("Initial stock snapshot failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stock snapshot sampler stopped")
			return
		case <-ticker.C:
			if err := s.SampleNow(); err != nil {
				log.Error().Err(err).Msg("Stock snapshot failed")
			}
		}
	}
}
