// Copyright (c) 2026 Nexsentia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Workspace Sync Service
//
// Entry point for the sync service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Sweeps sync runs abandoned by a previous crash
//  4. Starts the scheduler that triggers due incremental syncs
//  5. Serves the manual trigger and health endpoints
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Walter-bl/nexsentia-sub003/internal/config"
	"github.com/Walter-bl/nexsentia-sub003/internal/dedup"
	"github.com/Walter-bl/nexsentia-sub003/internal/models"
	"github.com/Walter-bl/nexsentia-sub003/internal/provider"
	"github.com/Walter-bl/nexsentia-sub003/internal/queue"
	"github.com/Walter-bl/nexsentia-sub003/internal/scheduler"
	"github.com/Walter-bl/nexsentia-sub003/internal/store"
	syncer "github.com/Walter-bl/nexsentia-sub003/internal/sync"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting workspace sync service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"provider", cfg.ProviderBaseURL,
		"default_interval", cfg.DefaultSyncInterval,
		"scheduler_tick", cfg.SchedulerTick,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.EventsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Store (Postgres) ---
	st, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// Mark runs abandoned by a previous crash as failed
	if n, err := st.FailStaleRuns(ctx, cfg.StaleRunAfter); err != nil {
		slog.Error("failed to sweep stale runs", "error", err)
	} else if n > 0 {
		slog.Warn("marked stale in-progress runs failed", "count", n)
	}

	// --- Provider Client ---
	providerClient := provider.NewClient(&http.Client{Timeout: 30 * time.Second}, cfg.ProviderBaseURL)

	// --- Orchestrator ---
	orch := syncer.NewOrchestrator(syncer.Config{
		Provider:    providerClient,
		Connections: st,
		Entities:    st,
		Runs:        st,
		Publisher:   publisher,
		Dedup:       dedup.NewFilter(rdb),
	})

	// --- Scheduler ---
	sched := scheduler.New(orch, st, cfg.SchedulerTick, cfg.DefaultSyncInterval)
	go sched.Run(ctx)

	// --- Trigger + Health Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sync", handleTriggerSync(orch))
	mux.HandleFunc("GET /runs", handleListRuns(st))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		// Check Postgres
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// Manual full syncs can run for minutes; no write timeout.
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop the scheduler

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("sync service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("sync service stopped")
}

// handleTriggerSync runs a manual sync and returns the resulting run.
func handleTriggerSync(orch *syncer.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connectionID, err := strconv.ParseInt(r.URL.Query().Get("connection_id"), 10, 64)
		if err != nil {
			http.Error(w, "connection_id must be an integer", http.StatusBadRequest)
			return
		}
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			http.Error(w, "tenant_id is required", http.StatusBadRequest)
			return
		}

		kind := models.SyncKind(r.URL.Query().Get("mode"))
		if kind == "" {
			kind = models.SyncIncremental
		}
		if kind != models.SyncFull && kind != models.SyncIncremental {
			http.Error(w, "mode must be full or incremental", http.StatusBadRequest)
			return
		}

		run, err := orch.RunSync(r.Context(), connectionID, tenantID, kind)
		if err != nil {
			switch {
			case errors.Is(err, syncer.ErrNotFound):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, syncer.ErrAlreadyInProgress):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	}
}

// handleListRuns returns a connection's recent sync history.
func handleListRuns(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connectionID, err := strconv.ParseInt(r.URL.Query().Get("connection_id"), 10, 64)
		if err != nil {
			http.Error(w, "connection_id must be an integer", http.StatusBadRequest)
			return
		}
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			http.Error(w, "tenant_id is required", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		runs, err := st.ListSyncRuns(r.Context(), tenantID, connectionID, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	}
}
