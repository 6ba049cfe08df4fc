package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mooderia-backend/internal/common/config"
	"mooderia-backend/internal/common/logger"
	"mooderia-backend/internal/common/middleware"
	"mooderia-backend/internal/features/citizen/cache"
	citizenhttp "mooderia-backend/internal/features/citizen/delivery/http"
	"mooderia-backend/internal/features/citizen/repository"
	pgrepo "mooderia-backend/internal/features/citizen/repository/postgres"
	redisrepo "mooderia-backend/internal/features/citizen/repository/redis"
	identityhttp "mooderia-backend/internal/features/identity/delivery/http"
	identitysvc "mooderia-backend/internal/features/identity/service"
	"mooderia-backend/internal/features/oracle"
	oraclehttp "mooderia-backend/internal/features/oracle/delivery/http"
	socialhttp "mooderia-backend/internal/features/social/delivery/http"
	socialsvc "mooderia-backend/internal/features/social/service"
	"mooderia-backend/internal/features/subscription"
	"mooderia-backend/internal/platform/db"
	redisplatform "mooderia-backend/internal/platform/redis"
)

func main() {
	cfg := config.Load()
	logger.Init("mooderia-backend", cfg.Debug)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	remote := openRemoteStore(ctx, cfg)

	localCache, err := cache.NewSQLiteStore(cfg.Cache.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open local cache")
	}
	defer localCache.Close()

	identity := identitysvc.NewIdentityService(remote, localCache)
	social := socialsvc.NewSocialService(remote, localCache)
	manager := subscription.NewManager(remote, localCache, identity)
	defer manager.Detach()

	oracleClient := oracle.NewClient(cfg.Oracle.Endpoint, cfg.Oracle.APIKey, cfg.Oracle.Timeout)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.Server.Origin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	identityhttp.NewIdentityHandler(identity, manager).RegisterRoutes(api)
	socialhttp.NewSocialHandler(social).RegisterRoutes(api)
	citizenhttp.NewDirectoryHandler(remote).RegisterRoutes(api)
	oraclehttp.NewOracleHandler(oracleClient).RegisterRoutes(api)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info().Str("addr", addr).Str("backend", cfg.RemoteBackend).Msg("server listening")
	if err := router.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func openRemoteStore(ctx context.Context, cfg *config.Config) repository.RemoteStore {
	switch cfg.RemoteBackend {
	case "postgres":
		pg, err := db.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		if err := pgrepo.EnsureSchema(ctx, pg); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare postgres schema")
		}
		return pgrepo.NewRemoteStore(pg, cfg.Postgres.PollInterval)

	case "redis":
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		client, err := redisplatform.Open(ctx, addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		return redisrepo.NewRemoteStore(client)

	default:
		logger.Fatal().Str("backend", cfg.RemoteBackend).Msg("unknown remote backend")
		return nil
	}
}
