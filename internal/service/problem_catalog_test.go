package service_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/codequest-edu/codequest-go-api/internal/models"
	"github.com/codequest-edu/codequest-go-api/internal/repository"
	"github.com/codequest-edu/codequest-go-api/internal/service"
)

func TestProblemCatalogCachesScopeReads(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Problem{}, &models.TestCase{}))

	problem := models.Problem{
		Title:      "Two Sum",
		Difficulty: models.DifficultyLevel1,
		Category:   "catalog-cache",
		Language:   "python",
		Points:     100,
		Active:     true,
		TestCases: []models.TestCase{
			{Input: "1 2", Expected: "3", Position: 0},
		},
	}
	require.NoError(t, db.Create(&problem).Error)

	catalog := service.NewProblemCatalog(repository.NewProblemRepository(db), redisClient, time.Minute, zerolog.Nop())

	first, err := catalog.ListScope(context.Background(), models.DifficultyLevel1, "catalog-cache", "python")
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Len(t, first[0].TestCases, 1)

	// The scope is now cached; a row added behind the cache is not visible
	// until the TTL lapses.
	stale := models.Problem{
		Title:      "Three Sum",
		Difficulty: models.DifficultyLevel1,
		Category:   "catalog-cache",
		Language:   "python",
		Points:     100,
		Active:     true,
	}
	require.NoError(t, db.Create(&stale).Error)

	cached, err := catalog.ListScope(context.Background(), models.DifficultyLevel1, "catalog-cache", "python")
	require.NoError(t, err)
	require.Len(t, cached, 1)

	mini.FastForward(2 * time.Minute)

	refreshed, err := catalog.ListScope(context.Background(), models.DifficultyLevel1, "catalog-cache", "python")
	require.NoError(t, err)
	require.Len(t, refreshed, 2)
}

func TestProblemCatalogWorksWithoutRedis(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Problem{}, &models.TestCase{}))

	problem := models.Problem{
		Title:      "Palindrome",
		Difficulty: models.DifficultyLevel2,
		Category:   "catalog-plain",
		Language:   "go",
		Points:     100,
		Active:     true,
	}
	require.NoError(t, db.Create(&problem).Error)

	catalog := service.NewProblemCatalog(repository.NewProblemRepository(db), nil, 0, zerolog.Nop())

	problems, err := catalog.ListScope(context.Background(), models.DifficultyLevel2, "catalog-plain", "go")
	require.NoError(t, err)
	require.Len(t, problems, 1)

	got, err := catalog.Get(context.Background(), problem.ID)
	require.NoError(t, err)
	require.Equal(t, "Palindrome", got.Title)
}
