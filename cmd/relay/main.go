package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/manpreetbhatti/inkwell/internal/api"
	"github.com/manpreetbhatti/inkwell/internal/bus"
	"github.com/manpreetbhatti/inkwell/internal/config"
	"github.com/manpreetbhatti/inkwell/internal/db"
	"github.com/manpreetbhatti/inkwell/internal/discovery"
	"github.com/manpreetbhatti/inkwell/internal/retention"
	"github.com/manpreetbhatti/inkwell/internal/ws"
)

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		glog.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	if n, err := database.CloseOpenSessions(); err != nil {
		glog.Warningf("Failed to close stale sessions: %v", err)
	} else if n > 0 {
		glog.Infof("Closed %d sessions left open by a previous run", n)
	}

	var b bus.Bus
	if cfg.Redis.Addr != "" {
		b, err = bus.NewRedis(ctx, cfg.Redis)
		if err != nil {
			glog.Fatalf("Failed to initialize bus: %v", err)
		}
		glog.Infof("Sharing rooms over Redis at %s", cfg.Redis.Addr)
	} else {
		b = bus.NewLocal()
	}
	defer b.Close()

	hub := ws.NewHub(database, b)
	hub.SetLimits(ws.Limits{
		MessagesPerSecond: cfg.Rate,
		Burst:             cfg.Burst,
		MaxViolations:     ws.DefaultLimits().MaxViolations,
	})
	if err := hub.Start(ctx); err != nil {
		glog.Fatalf("Failed to start hub: %v", err)
	}

	sweeper := retention.New(database, retention.Config{
		Interval:   retention.DefaultConfig().Interval,
		KeepClosed: cfg.Retention,
	})
	sweeper.Start()
	defer sweeper.Stop()

	if cfg.MDNS {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil {
			glog.Fatalf("PORT must be numeric to advertise over mDNS: %v", err)
		}
		server, err := discovery.Advertise(port)
		if err != nil {
			glog.Warningf("mDNS disabled: %v", err)
		} else {
			defer server.Shutdown()
		}
	}

	apiHandler := api.New(hub, database)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})
	mux.HandleFunc("/health", apiHandler.HealthHandler)
	mux.HandleFunc("/api/stats", apiHandler.StatsHandler)
	mux.HandleFunc("/api/rooms", apiHandler.RoomsRouter)
	mux.HandleFunc("/api/rooms/", apiHandler.RoomsRouter)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: corsMiddleware(mux),
	}

	go func() {
		<-ctx.Done()
		glog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	glog.Infof("Inkwell relay starting on :%s", cfg.Port)
	glog.Infof("Database: %s", cfg.DBPath)
	glog.Info("Endpoints:")
	glog.Info("  - WebSocket: /ws?room={roomId}")
	glog.Info("  - Health:    GET /health")
	glog.Info("  - Stats:     GET /api/stats")
	glog.Info("  - Rooms:     GET/POST /api/rooms")
	glog.Info("  - Room:      GET/DELETE /api/rooms/{id}")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Fatalf("ListenAndServe: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
