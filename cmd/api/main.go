package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/auth"
	"parishdesk.org/internal/httpapi"
	"parishdesk.org/internal/maintenance"
	"parishdesk.org/internal/obs"
	"parishdesk.org/internal/stream"
)

var (
	version = "0.4.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("PARISHDESK_AUTH_SECRET")
	if secret == "" {
		log.Fatal("PARISHDESK_AUTH_SECRET is required")
	}

	// Without a DSN the service runs on in-memory stores: useful for local
	// development, never for production.
	var db *sql.DB
	if dsn := os.Getenv("PARISHDESK_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		authStore  auth.Store
		auditStore audit.Store
		opStore    maintenance.Store
	)
	if db != nil {
		authStore = auth.NewPGStore(db)
		auditStore = audit.NewPGStore(db)
		opStore = maintenance.NewPGStore(db)
	} else {
		log.Print("PARISHDESK_PG_DSN not set, using in-memory stores")
		authStore = auth.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
		opStore = maintenance.NewMemoryStore()
	}

	authOpts := []auth.ServiceOption{}
	if ttl := envDuration("PARISHDESK_SESSION_TTL"); ttl > 0 {
		authOpts = append(authOpts, auth.WithSessionTTL(ttl))
	}
	if ttl := envDuration("PARISHDESK_REAUTH_TTL"); ttl > 0 {
		authOpts = append(authOpts, auth.WithReauthTTL(ttl))
	}
	authSvc, err := auth.NewService(authStore, secret, authOpts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	recorder := audit.NewRecorder(auditStore)
	events := stream.New()

	// Tenant reload verifies the backing store is healthy and leaves a log
	// line; connection pools are per-request so there is no per-tenant state
	// to flush in this process.
	restarter := maintenance.NewLocalRestarter(func(ctx context.Context, tenantID string) error {
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
		}
		obs.Event("info", "tenant_context_reloaded", map[string]any{"tenant_id": tenantID})
		return nil
	})
	orch := maintenance.New(
		opStore,
		authStore.Tenants(context.Background()),
		authSvc,
		restarter,
		recorder,
		events,
		maintenance.WithFullRestartEnabled(envBool("PARISHDESK_ALLOW_FULL_RESTART")),
	)

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, version, authSvc, authStore, orch, recorder, events)

	httpAddr := envOr("PARISHDESK_HTTP_ADDR", ":8080")
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second, // SSE responses outlive normal requests
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting parishdesk-api %s on %s", version, httpAddr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcSrv = httpapi.NewGRPCServer(probe)
	if grpcAddr := os.Getenv("PARISHDESK_GRPC_ADDR"); grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		log.Printf("gRPC health on %s", grpcAddr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()

	// Let in-flight maintenance operations reach a terminal state so their
	// records are consistent after the restart.
	orch.Wait()

	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envDuration(key string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: invalid duration %q", key, raw)
	}
	return d
}
