// Lobbyd is the lobby hub entry point.
//
// Serves the lobby websocket on /ws: peers register, create or join lobbies,
// exchange lobby chat and relay WebRTC signaling to each other. Envelope
// traffic never passes through the hub.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"golang.org/x/time/rate"

	"github.com/1ureka/lobbynet/internal/config"
	"github.com/1ureka/lobbynet/internal/lobby"
	"github.com/1ureka/lobbynet/internal/metrics"
	"github.com/1ureka/lobbynet/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_ = godotenv.Load(".env")

	listen := flag.String("listen", "", "Hub listen address (default from config, :8787)")
	metricsAddr := flag.String("metrics", "", "Separate listen address for /metrics (optional)")
	cfgPath := flag.String("config", "", "Path to a YAML config file")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	if setFlags["listen"] {
		cfg.Listen = *listen
	}
	if setFlags["metrics"] {
		cfg.MetricsAddr = *metricsAddr
	}
	if *debugMode || cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println("Lobbyd — v" + version)
	pterm.Println()

	hub := lobby.NewHub(lobby.HubOptions{
		ChatRate:   rate.Limit(cfg.ChatRate),
		ChatBurst:  cfg.ChatBurst,
		MaxMembers: cfg.MaxMembers,
	})

	servers := []*http.Server{{Addr: cfg.Listen, Handler: hub.Routes()}}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: mux})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		util.LogSuccess("listening on %s", srv.Addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		util.LogError("server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			util.LogWarning("shutdown %s: %v", srv.Addr, err)
		}
	}
	util.LogInfo("lobby hub stopped")
}
