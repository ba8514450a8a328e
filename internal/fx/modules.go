package fx

import (
	"database/sql"
	"rift-analytics/internal/cache"
	"rift-analytics/internal/config"
	"rift-analytics/internal/database"
	"rift-analytics/internal/lock"
	"rift-analytics/internal/logger"
	"rift-analytics/internal/repository"
	"rift-analytics/internal/riot"
	"rift-analytics/internal/server"
	"rift-analytics/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ProvideConfig loads configuration through a bootstrap logger; the leveled
// application logger cannot exist until the config it is built from does.
func ProvideConfig() (*config.Config, error) {
	return config.Load(logger.New())
}

// ProvideLogger builds the application logger at the configured level.
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log := logger.New()
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping debug")
		return log
	}
	return logger.SetLevel(level)
}

func ProvideDatabase(cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	return database.New(cfg.DBPath, log)
}

// ProvideRedis returns nil when no address is configured; the cache and lock
// degrade to local-only behavior in that case.
func ProvideRedis(cfg *config.Config, log zerolog.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Warn().Msg("no redis address configured, shared cache tier disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
}

func ProvideRiotClient(cfg *config.Config) *riot.Client {
	return riot.NewClient(cfg.RiotAPIKey)
}

func ProvideRiotInterface(client *riot.Client) service.RiotClient {
	return client
}

var Module = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideDatabase),
	fx.Provide(ProvideRedis),
	fx.Provide(cache.New),
	fx.Provide(lock.New),
	// repos
	fx.Provide(repository.NewSummonerRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewRuneLoadoutRepository),
	fx.Provide(repository.NewAggregateRepository),
	fx.Provide(repository.NewPatchRepository),
	// api client
	fx.Provide(ProvideRiotClient),
	fx.Provide(ProvideRiotInterface),
	// svc
	fx.Provide(service.NewMatchTransformer),
	fx.Provide(service.NewMatchIngestor),
	fx.Provide(service.NewAnalyticsService),
	fx.Provide(service.NewRetryCoordinator),
	fx.Provide(service.NewLiveGameService),
	fx.Provide(service.NewRefreshService),
	// server
	fx.Provide(server.New),
)
