package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fieldwatch/fieldwatch/internal/log"
	"github.com/fieldwatch/fieldwatch/internal/types"
)

// TimescaleDBStore is the GORM-backed record store. It works against plain
// PostgreSQL as well; TimescaleDB hypertables only improve retention and
// rollups on the readings table.
type TimescaleDBStore struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// NewTimescaleDBStore connects and migrates the record tables.
func NewTimescaleDBStore(connectionString string, logger *zap.SugaredLogger) (*TimescaleDBStore, error) {
	dbLogger := gormlogger.New(
		zap.NewStdLog(log.GetZapLogger()),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Warn,
		},
	)

	logger.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to create a TimescaleDB connection: %w", err)
	}

	if err := db.AutoMigrate(&types.Reading{}, &types.AnomalyEvent{}, &types.Recommendation{}); err != nil {
		return nil, fmt.Errorf("migrating record tables: %w", err)
	}
	logger.Info("TimescaleDB connection successful")

	return &TimescaleDBStore{db: db, logger: logger}, nil
}

func (s *TimescaleDBStore) SaveReading(ctx context.Context, r *types.Reading) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("saving reading for plot %d/%s: %w", r.PlotID, r.SensorType, err)
	}
	return nil
}

func (s *TimescaleDBStore) SaveAnomalyEvent(ctx context.Context, ev *types.AnomalyEvent) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("saving anomaly event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *TimescaleDBStore) SaveRecommendation(ctx context.Context, rec *types.Recommendation) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("saving recommendation for event %s: %w", rec.AnomalyEventID, err)
	}
	return nil
}

func (s *TimescaleDBStore) RecentReadings(ctx context.Context, plotID int64, sensor types.SensorType, count int) ([]types.Reading, error) {
	var newest []types.Reading
	err := s.db.WithContext(ctx).
		Where("plot_id = ? AND sensor_type = ?", plotID, sensor).
		Order("time DESC").
		Limit(count).
		Find(&newest).Error
	if err != nil {
		return nil, fmt.Errorf("fetching recent readings for plot %d/%s: %w", plotID, sensor, err)
	}

	// Reverse to oldest-first for windowing.
	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return newest, nil
}

func (s *TimescaleDBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
