package devserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/flox-go/internal/export"
	"github.com/birbparty/flox-go/internal/telemetry"
	"github.com/birbparty/flox-go/internal/wire"
)

// RetentionConfig contains configuration for the log retention service
type RetentionConfig struct {
	// MaxAge is how long logs are kept. Zero disables the service.
	MaxAge   time.Duration
	Interval time.Duration
	DryRun   bool
	// ArchiveDir, when set, receives every expired batch before deletion.
	ArchiveDir string
}

// LoadRetentionConfig loads retention configuration from environment variables
func LoadRetentionConfig() RetentionConfig {
	return RetentionConfig{
		MaxAge:     getEnvDuration("LOG_RETENTION", 0),
		Interval:   getEnvDuration("LOG_RETENTION_INTERVAL", time.Hour),
		DryRun:     getEnvBool("LOG_RETENTION_DRY_RUN", false),
		ArchiveDir: os.Getenv("LOG_ARCHIVE_DIR"),
	}
}

// RetentionService periodically deletes logs older than MaxAge, archiving
// them to a sink first if one is configured.
type RetentionService struct {
	store   Store
	games   []string
	archive export.Sink
	config  RetentionConfig
	logger  *logrus.Entry
	now     func() time.Time
}

// RetentionResult summarizes one cycle for one game
type RetentionResult struct {
	Game        string
	Expired     int
	Deleted     int
	ArchivePath string
}

// NewRetentionService creates a retention service over the logs of games.
// archive may be nil.
func NewRetentionService(store Store, games []string, archive export.Sink, config RetentionConfig) *RetentionService {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	games = append([]string(nil), games...)
	sort.Strings(games)

	return &RetentionService{
		store:   store,
		games:   games,
		archive: archive,
		config:  config,
		logger:  telemetry.L().WithField("component", "retention"),
		now:     time.Now,
	}
}

// Start runs a cycle immediately and then every Interval until ctx is done
func (r *RetentionService) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.WithFields(logrus.Fields{
		"max_age":  r.config.MaxAge,
		"interval": r.config.Interval,
		"dry_run":  r.config.DryRun,
	}).Info("Log retention started")

	r.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			r.logger.Info("Log retention stopped")
			return
		}
	}
}

// RunOnce executes one retention cycle over all games
func (r *RetentionService) RunOnce(ctx context.Context) []RetentionResult {
	var results []RetentionResult
	for _, game := range r.games {
		result, err := r.expireGame(ctx, game)
		if err != nil {
			r.logger.WithError(err).WithField("game", game).Error("Failed to expire logs")
			continue
		}
		if result.Expired > 0 {
			r.logger.WithFields(logrus.Fields{
				"game":    game,
				"expired": result.Expired,
				"deleted": result.Deleted,
				"archive": result.ArchivePath,
			}).Info("Expired logs")
		}
		results = append(results, result)
	}
	return results
}

func (r *RetentionService) expireGame(ctx context.Context, game string) (RetentionResult, error) {
	result := RetentionResult{Game: game}
	cutoff := r.now().Add(-r.config.MaxAge)

	logs, err := r.store.List(ctx, logCollection(game))
	if err != nil {
		return result, fmt.Errorf("failed to list logs: %w", err)
	}

	var ids []string
	for id, doc := range logs {
		if r.shouldExpire(doc, cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	result.Expired = len(ids)
	if len(ids) == 0 || r.config.DryRun {
		return result, nil
	}

	if r.archive != nil {
		records := make([]export.Record, 0, len(ids))
		for _, id := range ids {
			doc := logs[id]
			doc["id"] = id
			records = append(records, doc)
		}
		name := fmt.Sprintf("logs-%s-%s", game, r.now().UTC().Format("20060102-150405"))
		path, err := r.archive.Write(ctx, name, records)
		if err != nil {
			return result, fmt.Errorf("failed to archive: %w", err)
		}
		result.ArchivePath = path
	}

	for _, id := range ids {
		if err := r.store.Delete(ctx, logCollection(game), id); err != nil && !errors.Is(err, ErrNotFound) {
			return result, fmt.Errorf("failed to delete log %s: %w", id, err)
		}
		result.Deleted++
	}
	return result, nil
}

// shouldExpire reports whether a log was written before cutoff. Logs
// without a readable time are kept.
func (r *RetentionService) shouldExpire(doc Document, cutoff time.Time) bool {
	raw, ok := doc["time"].(string)
	if !ok {
		return false
	}
	written, err := wire.ParseTime(raw)
	if err != nil {
		return false
	}
	return written.Before(cutoff)
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
