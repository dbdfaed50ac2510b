// Command roleauthd serves the roleauth HTTP API.
//
// Usage:
//
//	roleauthd                                   serve, configured from the environment
//	roleauthd adduser -email a@b.c -password pw   create a user with no role
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/roleauth"
	"github.com/MrEthical07/roleauth/internal/config"
	"github.com/MrEthical07/roleauth/internal/httpapi"
	"github.com/MrEthical07/roleauth/internal/logger"
	"github.com/MrEthical07/roleauth/mailer"
	promexport "github.com/MrEthical07/roleauth/metrics/export/prometheus"
	"github.com/MrEthical07/roleauth/password"
	"github.com/MrEthical07/roleauth/sessionsync"
	mongostore "github.com/MrEthical07/roleauth/storage/mongo"
	"github.com/MrEthical07/roleauth/storage/sqlite"
)

// userStore is what both storage backends provide.
type userStore interface {
	roleauth.IdentityStore
	roleauth.ResetTokenStore
	CreateUser(ctx context.Context, email, credentialHash string) (roleauth.UserRecord, error)
	Ping(ctx context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logger.Init(logger.Options{Level: env.LogLevel, Pretty: env.LogPretty, Service: "roleauthd"})

	if len(os.Args) > 1 && os.Args[1] == "adduser" {
		err = addUser(ctx, env, os.Args[2:])
	} else {
		err = serve(ctx, env, log)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("roleauthd stopped")
	}
}

func serve(ctx context.Context, env *config.Env, log zerolog.Logger) error {
	cfg, err := env.EngineConfig()
	if err != nil {
		return err
	}
	if env.Ephemeral() {
		log.Warn().Msg("no signing key configured; sessions will not survive a restart")
	}

	store, closeStore, err := openStore(ctx, env)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := sessionsync.NewHub(cfg.Sync.SubscriberBuffer)
	var publisher sessionsync.Publisher = hub

	builder := roleauth.New().
		WithConfig(cfg).
		WithIdentityStore(store).
		WithResetTokenStore(store).
		WithLogger(log)

	var relay *sessionsync.RedisRelay
	if env.Redis.Addr != "" {
		rdb, err := connectRedis(ctx, env)
		if err != nil {
			return err
		}
		defer rdb.Close()

		builder = builder.WithRedis(rdb)
		relay = sessionsync.NewRedisRelay(hub, rdb, cfg.Sync.RedisChannel, log)
		publisher = relay
	}
	builder = builder.WithSessionPublisher(publisher)

	if smtpCfg, ok := env.MailerConfig(); ok {
		m, err := mailer.NewSMTP(smtpCfg)
		if err != nil {
			return err
		}
		builder = builder.WithMailer(m)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	log.Info().
		Bool("production", report.ProductionMode).
		Str("signing", report.SigningAlgorithm).
		Dur("session_ttl", report.SessionTTL).
		Bool("reset_throttle", report.ResetThrottleActive).
		Bool("atomic_reset_redeem", report.AtomicResetRedeem).
		Bool("secure_cookies", report.SecureCookies).
		Strs("protected", report.ProtectedPrefixes).
		Msg("engine ready")

	api, err := httpapi.New(httpapi.Deps{
		Engine:  engine,
		Hub:     hub,
		Logger:  log,
		Metrics: promexport.NewCollector(engine).Handler(),
		Ready:   store.Ping,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              env.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	if relay != nil {
		go func() {
			if err := relay.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}
	if purger, ok := store.(interface {
		PurgeExpiredResetTokens(context.Context, time.Time) (int64, error)
	}); ok {
		go purgeLoop(ctx, purger.PurgeExpiredResetTokens, env.Store.PurgeInterval, log)
	}
	go func() {
		log.Info().Str("addr", env.Addr).Str("store", env.Store.Backend).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.ShutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown incomplete")
	}
	return runErr
}

func openStore(ctx context.Context, env *config.Env) (userStore, func(), error) {
	switch env.Store.Backend {
	case config.BackendMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: env.Store.MongoURI, Database: env.Store.MongoDatabase})
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.NewStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	default:
		store, err := sqlite.Open(env.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}

func connectRedis(ctx context.Context, env *config.Env) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     env.Redis.Addr,
		Password: env.Redis.Password,
		DB:       env.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, env.DependencyTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func purgeLoop(ctx context.Context, purge func(context.Context, time.Time) (int64, error), every time.Duration, log zerolog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx, time.Now())
			if err != nil {
				log.Warn().Err(err).Msg("reset token purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("purged reset tokens")
			}
		}
	}
}

func addUser(ctx context.Context, env *config.Env, args []string) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	email := fs.String("email", "", "user email")
	plaintext := fs.String("password", "", "initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *plaintext == "" {
		return errors.New("adduser: -email and -password are required")
	}

	cfg := roleauth.DefaultConfig()
	hasher, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinLength,
		MaxPasswordBytes: cfg.Password.MaxLength,
	})
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(*plaintext)
	if err != nil {
		return fmt.Errorf("%w: %v", roleauth.ErrPasswordPolicy, err)
	}

	store, closeStore, err := openStore(ctx, env)
	if err != nil {
		return err
	}
	defer closeStore()

	user, err := store.CreateUser(ctx, *email, hash)
	if err != nil {
		return err
	}
	fmt.Println(user.UserID)
	return nil
}
