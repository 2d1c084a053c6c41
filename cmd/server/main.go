package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardroom/internal/auth"
	"cardroom/internal/codec"
	"cardroom/internal/config"
	"cardroom/internal/gateway"
	"cardroom/internal/lobby"
	"cardroom/internal/match"
	"cardroom/internal/replay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Server] Failed to load config: %v", err)
	}

	authService, authMode, err := auth.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init auth manager: %v", err)
	}
	defer authService.Close()

	recorder, replayMode, err := replay.NewRecorderFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init replay recorder: %v", err)
	}
	defer recorder.Close()

	snapshots, err := match.NewSnapshotCache(cfg.SnapshotCacheSize)
	if err != nil {
		log.Fatalf("[Server] Failed to init snapshot cache: %v", err)
	}

	var gw *gateway.Gateway
	lby := lobby.New(lobby.Config{
		Match:         match.Config{ConnLossGrace: cfg.ConnLossGrace},
		IdleTTL:       cfg.GameIdleTTL,
		SweepInterval: cfg.SweepInterval,
	}, recorder, snapshots, func(accountID uint64, env codec.EventEnvelope) {
		gw.SendToAccount(accountID, env)
	})
	defer lby.Stop()
	gw = gateway.New(gateway.Config{MaxConnections: cfg.MaxConnections}, authService, lby, recorder, snapshots)

	for _, name := range cfg.DefaultRooms {
		if _, err := lby.CreateRoom(name, ""); err != nil {
			log.Fatalf("[Server] Failed to create room %q: %v", name, err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok instance=%s sessions=%d\n", cfg.InstanceID, gw.SessionCount())
	})

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Printf("[Server] Instance %s", cfg.InstanceID)
		log.Printf("[Server] Auth mode: %s", authMode)
		log.Printf("[Server] Replay mode: %s", replayMode)
		log.Printf("[Server] Starting WebSocket server on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] Failed to start: %v", err)
		}
	}()

	tcpListener, err := net.Listen("tcp", cfg.TCPAddr)
	if err != nil {
		log.Fatalf("[Server] Failed to listen on %s: %v", cfg.TCPAddr, err)
	}
	log.Printf("[Server] Starting framed TCP listener on %s", cfg.TCPAddr)
	go gw.ServeTCP(tcpListener)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("[Server] Shutting down")
	tcpListener.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[Server] HTTP shutdown: %v", err)
	}
}
