// Package app wires the core together: configuration, logging, store
// connections, and the service graph. Transports (HTTP routers, CLIs) build
// on top of an App instead of assembling the pieces themselves.
package app

import (
	"context"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gomongo "go.mongodb.org/mongo-driver/mongo"

	"github.com/parishdesk/member-system/internal/auth"
	"github.com/parishdesk/member-system/internal/core/ports"
	"github.com/parishdesk/member-system/internal/core/service"
	"github.com/parishdesk/member-system/internal/infrastructure/config"
	"github.com/parishdesk/member-system/internal/infrastructure/db/mongo"
	"github.com/parishdesk/member-system/internal/infrastructure/db/redis"
	"github.com/parishdesk/member-system/pkg/logger"
)

// App holds the fully wired service graph and the connections behind it.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	Users  *mongo.UserRepository
	Tokens *auth.TokenService

	Service *service.UserService
	Guard   *service.AccessGuard

	mongoClient *gomongo.Client
	redisClient *goredis.Client
}

// New loads configuration, connects to the stores, and builds the service
// graph. Mongo is required; Redis is optional and its absence only disables
// login throttling.
func New(ctx context.Context) (*App, error) {
	// Configuration failures are reported on a bare stderr logger; the real
	// singleton is initialised once the configured level is known.
	cfg := config.Load(zerolog.New(os.Stderr).With().Timestamp().Logger())
	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	client, db, err := mongo.Connect(ctx, mongo.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	users := mongo.NewUserRepository(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure user indexes: %w", err)
	}

	var (
		rdb      *goredis.Client
		throttle ports.LoginThrottle
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, login throttling disabled")
			rdb = nil
		} else {
			throttle = redis.NewLoginThrottle(rdb, cfg.Auth.LoginAttemptLimit, cfg.Auth.LoginAttemptWindow)
		}
	}

	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	svc := service.NewUserService(users, hasher, tokens, throttle, log)
	guard := service.NewAccessGuard(tokens, users, log)

	return &App{
		Config:      cfg,
		Log:         log,
		Users:       users,
		Tokens:      tokens,
		Service:     svc,
		Guard:       guard,
		mongoClient: client,
		redisClient: rdb,
	}, nil
}

// Close releases the store connections.
func (a *App) Close(ctx context.Context) error {
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.mongoClient != nil {
		return a.mongoClient.Disconnect(ctx)
	}
	return nil
}
