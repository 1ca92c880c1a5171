package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/codequest-edu/codequest-go-api/internal/models"
	"github.com/codequest-edu/codequest-go-api/internal/repository"
)

// ProblemCatalog serves the problem set of an exam scope. The set is read on
// every session start and again during finalization, so it is cached in
// redis with a short TTL; the cache is purely an optimization and the
// catalog works without it.
type ProblemCatalog interface {
	ListScope(ctx context.Context, level, category, language string) ([]models.Problem, error)
	Get(ctx context.Context, id uint) (models.Problem, error)
}

type problemCatalog struct {
	problems repository.ProblemRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewProblemCatalog constructs the catalog. A nil redis client disables caching.
func NewProblemCatalog(problems repository.ProblemRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ProblemCatalog {
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &problemCatalog{
		problems: problems,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "problem_catalog").Logger(),
	}
}

func (c *problemCatalog) ListScope(ctx context.Context, level, category, language string) ([]models.Problem, error) {
	cacheKey := fmt.Sprintf("problems:scope:%s:%s:%s", level, category, language)

	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey).Result(); err == nil {
			var problems []models.Problem
			if unmarshalErr := json.Unmarshal([]byte(cached), &problems); unmarshalErr == nil {
				c.logger.Debug().Str("key", cacheKey).Msg("problem scope cache hit")
				return problems, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("failed to read problem scope cache")
		}
	}

	problems, err := c.problems.ListActive(ctx, level, category, language)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if payload, err := json.Marshal(problems); err == nil {
			if err := c.cache.Set(ctx, cacheKey, payload, c.cacheTTL).Err(); err != nil {
				c.logger.Warn().Err(err).Msg("failed to store problem scope cache")
			}
		}
	}

	return problems, nil
}

func (c *problemCatalog) Get(ctx context.Context, id uint) (models.Problem, error) {
	return c.problems.GetByID(ctx, id)
}
