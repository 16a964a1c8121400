package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"jewelpos/backend/internal/cache"
	"jewelpos/backend/internal/config"
	"jewelpos/backend/internal/httpapi"
	"jewelpos/backend/internal/metrics"
	"jewelpos/backend/internal/repository"
	"jewelpos/backend/internal/sale"
	"jewelpos/backend/internal/service"
	"jewelpos/backend/internal/store"
	"jewelpos/backend/internal/store/memory"
	pgstore "jewelpos/backend/internal/store/postgres"
	redisstore "jewelpos/backend/internal/store/redis"
	sqlitestore "jewelpos/backend/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	gin.SetMode(gin.ReleaseMode)

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	kv, err := openStore(startCtx, cfg)
	if err != nil {
		log.Fatalf("store %s unavailable: %v", cfg.StoreBackend, err)
	}
	closers = append(closers, kv.Close)
	log.Printf("store: %s", cfg.StoreBackend)

	repo := repository.New(kv)
	if cfg.SeedDemoData {
		if err := repo.SeedDemo(startCtx); err != nil {
			log.Fatalf("seed demo data: %v", err)
		}
	}
	if err := repo.SeedUsers(startCtx, bcrypt.DefaultCost); err != nil {
		log.Fatalf("seed users: %v", err)
	}

	policy, err := sale.ParsePolicy(cfg.SaleCommitFallback)
	if err != nil {
		log.Fatalf("invalid SALE_COMMIT_FALLBACK: %v", err)
	}
	var outbox *sale.KVOutbox
	if policy == sale.PolicyOutbox {
		outboxKV, err := sqlitestore.New(startCtx, cfg.OutboxPath)
		if err != nil {
			log.Fatalf("outbox %s unavailable: %v", cfg.OutboxPath, err)
		}
		closers = append(closers, outboxKV.Close)
		outbox = sale.NewKVOutbox(outboxKV)
		log.Printf("sale fallback: outbox at %s", cfg.OutboxPath)
	} else {
		log.Println("sale fallback: strict")
	}

	catalog := cache.CatalogCache(cache.NoopCatalogCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCatalogCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, time.Duration(cfg.CatalogCacheTTLSeconds)*time.Second)
		if err := redisCache.Ping(startCtx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
			_ = redisCache.Close()
		} else {
			catalog = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	m := metrics.New()
	// Leave the interface nil rather than holding a nil *KVOutbox.
	var pending sale.Outbox
	var replayer *sale.Replayer
	if outbox != nil {
		pending = outbox
		replayer = sale.NewReplayer(repo, outbox, time.Duration(cfg.OutboxRetrySeconds)*time.Second, m)
	}
	committer := sale.NewCommitter(repo, pending, policy, m)
	svc := service.New(repo, catalog, committer, pending)
	if replayer != nil {
		replayer.OnStored = svc.InvalidateCatalog
	}
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, bcrypt.DefaultCost)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Metrics:        m,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("jewelpos backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	if replayer != nil {
		g.Go(func() error {
			return replayer.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// redisNamespace prefixes every key the redis backend writes.
const redisNamespace = "jewelpos:"

// openStore connects the configured backend. There is no silent fallback to
// memory when a durable backend was asked for.
func openStore(ctx context.Context, cfg config.Config) (store.KV, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Println("[store] WARN: in-memory store, data is lost on restart")
		return memory.New(), nil
	case config.BackendSQLite:
		return sqlitestore.New(ctx, cfg.SQLitePath)
	case config.BackendPostgres:
		return pgstore.New(ctx, cfg.DatabaseURL)
	case config.BackendRedis:
		return redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redisNamespace)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.StoreBackend)
	}
}

var weakSecrets = []string{"changeme", "change-me", "secret", "password", "jewelpos"}

func validateSecurityConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	lower := strings.ToLower(cfg.AuthSecret)
	for _, weak := range weakSecrets {
		if strings.Repeat(weak, len(lower)/len(weak)+1)[:len(lower)] == lower {
			return fmt.Errorf("AUTH_SECRET is a repeated placeholder")
		}
	}
	if os.Getenv("SEED_ADMIN_PASSWORD") == "admin123" {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must not be the development default")
	}
	return nil
}
