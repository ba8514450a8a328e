package service

import (
	"context"
	"fmt"
	"rift-analytics/internal/constants"
	"rift-analytics/internal/domain"
	"rift-analytics/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RetryCoordinator periodically re-attempts matches stuck in
// TEMPORARY_FAILURE. Each run is bounded by batch size and a cooldown window
// so a flapping upstream cannot trigger a thundering herd.
type RetryCoordinator struct {
	matchRepo *repository.MatchRepository
	ingestor  *MatchIngestor
	logger    zerolog.Logger
}

func NewRetryCoordinator(matchRepo *repository.MatchRepository, ingestor *MatchIngestor, logger zerolog.Logger) *RetryCoordinator {
	return &RetryCoordinator{matchRepo: matchRepo, ingestor: ingestor, logger: logger}
}

// RunOnce processes a single retry batch. Failures are isolated per match:
// one bad match never stops the rest of the batch. Context cancellation
// abandons the remainder; untouched matches keep their old attempt timestamp
// and stay eligible for the next run.
func (c *RetryCoordinator) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	log := c.logger.With().Str("retry_run_id", runID).Logger()

	pending, err := c.matchRepo.CountByStatus(ctx, domain.FetchStatusTemporaryFailure)
	if err != nil {
		return fmt.Errorf("failed to count retryable matches: %w", err)
	}

	cutoff := time.Now().Add(-constants.RetryCooldown)
	matchIDs, err := c.matchRepo.ListRetryable(ctx, cutoff, constants.RetryBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list retryable matches: %w", err)
	}
	log.Info().
		Int("pending_total", pending).
		Int("batch_size", len(matchIDs)).
		Msg("starting retry run")
	if len(matchIDs) == 0 {
		return nil
	}

	var succeeded, failed int
	for _, matchID := range matchIDs {
		if err := ctx.Err(); err != nil {
			log.Warn().
				Int("remaining", len(matchIDs)-succeeded-failed).
				Msg("retry run cancelled, abandoning remainder")
			return err
		}
		regionalRoute, platformRoute := routesForMatchID(matchID)
		if err := c.ingestor.Ingest(ctx, matchID, regionalRoute, platformRoute); err != nil {
			failed++
			log.Warn().Err(err).Str("match_id", matchID).Msg("retry attempt failed")
			continue
		}
		succeeded++
	}

	log.Info().
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("retry run complete")
	return nil
}

// Run blocks, executing retry batches on a fixed interval until the context
// is cancelled.
func (c *RetryCoordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				c.logger.Error().Err(err).Msg("retry run aborted")
			}
		}
	}
}
