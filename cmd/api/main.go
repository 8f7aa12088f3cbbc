package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campus-identity/internal/application/account"
	"github.com/campus-identity/internal/application/reset"
	"github.com/campus-identity/internal/application/session"
	"github.com/campus-identity/internal/config"
	"github.com/campus-identity/internal/infrastructure/dynamo"
	"github.com/campus-identity/internal/infrastructure/google"
	jwtinfra "github.com/campus-identity/internal/infrastructure/jwt"
	"github.com/campus-identity/internal/infrastructure/memory"
	"github.com/campus-identity/internal/infrastructure/redisstore"
	"github.com/campus-identity/internal/infrastructure/smtp"
	"github.com/campus-identity/internal/infrastructure/sns"
	"github.com/campus-identity/internal/pkg/token"
	transporthttp "github.com/campus-identity/internal/transport/http"
	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
)

const sweepInterval = time.Minute

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	setupLogger(cfg)
	if envErr != nil {
		slog.Info("no .env file found, reading from environment")
	}

	if err := run(cfg); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	banner(cfg.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	dirRepo := dynamo.NewDirectoryRepo(dynamoClient, cfg.DynamoTables.Directory)

	stores, err := openResetStores(ctx, cfg, dynamoClient)
	if err != nil {
		return err
	}
	defer stores.close()

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	accountDeps := account.ServiceDeps{
		UserRepo:       userRepo,
		DirectoryRepo:  dirRepo,
		GoogleVerifier: googleAdapter{v: google.NewVerifier(cfg.GoogleClientID)},
		EmailDomain:    cfg.AllowedEmailDomain,
		AdminEmails:    cfg.AdminEmails,
		AppName:        cfg.AppName,
	}
	if sender, err := sns.NewSender(cfg); err == nil {
		accountDeps.SMSSender = sender
	} else {
		slog.Warn("sns sender not available, password change sms disabled", "err", err)
	}
	accounts := account.NewService(accountDeps)

	resetCfg, err := resetConfig(cfg)
	if err != nil {
		return err
	}

	deps := &transporthttp.Deps{
		Reset: reset.NewService(reset.ServiceDeps{
			Sessions:    stores.sessions,
			Directory:   dirRepo,
			Credentials: accounts,
			Notifier:    smtp.NewMailer(cfg),
			Config:      resetCfg,
		}),
		Accounts: accounts,
		Sessions: session.NewService(session.ServiceDeps{
			UserRepo:      userRepo,
			DirectoryRepo: dirRepo,
			JWTProvider:   jwtProvider,
		}),
		Directory:   dirRepo,
		JWTProvider: jwtProvider,
		RateLimiter: transporthttp.NewCredentialRateLimiter(),
	}
	defer deps.RateLimiter.Close()

	if cfg.ResetTokenSecret != "" {
		signer, err := jwtinfra.NewResetSigner(cfg.ResetTokenSecret, cfg.AppName)
		if err != nil {
			return fmt.Errorf("reset token signer: %w", err)
		}
		deps.ResetTokens = reset.NewTokenService(reset.TokenServiceDeps{
			Sessions:    stores.sessions,
			Redemptions: stores.redemptions,
			Credentials: accounts,
			Signer:      signer,
			Config:      resetCfg,
		})
		slog.Info("two-step reset endpoints enabled", "token_ttl", resetCfg.TokenTTL)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "reset_store", cfg.ResetStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	slog.Info("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

type resetStores struct {
	sessions    reset.SessionStore
	redemptions reset.RedemptionStore
	close       func()
}

// openResetStores picks the reset session backend named by RESET_STORE.
func openResetStores(ctx context.Context, cfg *config.Config, dynamoClient dynamo.API) (*resetStores, error) {
	switch cfg.ResetStore {
	case "dynamo", "":
		return &resetStores{
			sessions:    dynamo.NewResetSessionRepo(dynamoClient, cfg.DynamoTables.ResetSessions),
			redemptions: dynamo.NewRedemptionRepo(dynamoClient, cfg.DynamoTables.ResetRedemptions),
			close:       func() {},
		}, nil
	case "redis":
		rdb, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return &resetStores{
			sessions:    redisstore.NewResetSessionRepo(rdb, ""),
			redemptions: redisstore.NewRedemptionRepo(rdb, ""),
			close: func() {
				if err := rdb.Close(); err != nil {
					slog.Warn("closing redis", "err", err)
				}
			},
		}, nil
	case "memory":
		sessions := memory.NewResetSessionRepo()
		redemptions := memory.NewRedemptionRepo()
		sweepCtx, cancel := context.WithCancel(ctx)
		done := memory.StartSweeper(sweepCtx, sweepInterval, sessions, redemptions)
		slog.Warn("reset sessions kept in process memory, do not run more than one instance")
		return &resetStores{
			sessions:    sessions,
			redemptions: redemptions,
			close: func() {
				cancel()
				<-done
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown RESET_STORE %q", cfg.ResetStore)
	}
}

// resetConfig projects the environment into the reset protocol settings.
func resetConfig(cfg *config.Config) (reset.Config, error) {
	var hasher reset.Hasher
	switch cfg.OTPHasher {
	case "bcrypt":
		hasher = reset.NewBcryptHasher(0)
	case "hmac", "":
		secret := cfg.OTPHashSecret
		if secret == "" {
			if !cfg.IsDevelopment() {
				return reset.Config{}, errors.New("OTP_HASH_SECRET is required outside development")
			}
			s, err := token.NewSecret(32)
			if err != nil {
				return reset.Config{}, err
			}
			secret = s
			slog.Warn("OTP_HASH_SECRET not set, using a random per-process secret")
		}
		h, err := reset.NewHMACHasher(secret)
		if err != nil {
			return reset.Config{}, err
		}
		hasher = h
	default:
		return reset.Config{}, fmt.Errorf("unknown OTP_HASHER %q", cfg.OTPHasher)
	}

	return reset.Config{
		TTL:              cfg.OTPTTL,
		MaxAttempts:      cfg.OTPMaxAttempts,
		CodeLength:       cfg.OTPLength,
		Hasher:           hasher,
		AppName:          cfg.AppName,
		EmailDomain:      cfg.AllowedEmailDomain,
		RetentionGrace:   cfg.OTPRetention,
		EnumerationDelay: cfg.EnumerationDelay,
		TokenTTL:         cfg.ResetTokenTTL,
	}, nil
}

// googleAdapter narrows the Google verifier's payload to what signup needs.
type googleAdapter struct {
	v *google.Verifier
}

func (a googleAdapter) Verify(ctx context.Context, idToken string) (*account.GooglePayload, error) {
	p, err := a.v.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &account.GooglePayload{
		Sub:           p.Sub,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		Name:          p.Name,
	}, nil
}

func setupLogger(cfg *config.Config) {
	var h slog.Handler
	if cfg.IsDevelopment() {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		h = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(h))
}

func banner(appName string) {
	figure.NewFigure(appName, "cybermedium", true).Print()
	fmt.Println()
}
