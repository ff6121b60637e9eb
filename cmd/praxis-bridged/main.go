// Command praxis-bridged serves one bridge per process over HTTP and
// WebSocket. Clients submit protocol envelopes on /ws and observe every
// bridge event; REST endpoints expose health, metrics and execution history.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/maraxen/praxisbridge"
)

func main() {
	configPath := flag.String("config", "", "path to a CUE config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	opts := []praxisbridge.Option{
		praxisbridge.WithLogger(log),
		praxisbridge.WithPackages(cfg.Packages...),
	}

	if cfg.Assets != "" {
		log.Info("using asset directory", "path", cfg.Assets)
		opts = append(opts, praxisbridge.WithAssets(os.DirFS(cfg.Assets)))
	}

	if cfg.Database != "" {
		log.Info("opening history database", "path", cfg.Database)
		db, err := sql.Open("sqlite", cfg.Database)
		if err != nil {
			log.Error("open history database failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		store, err := praxisbridge.NewSQLiteHistory(db)
		if err != nil {
			log.Error("history schema setup failed", "error", err)
			os.Exit(1)
		}
		opts = append(opts, praxisbridge.WithHistory(store))
	}

	h := newHub(log)
	metrics := &praxisbridge.BasicMetrics{}
	opts = append(opts, praxisbridge.WithObserver(praxisbridge.NewCompositeObserver(
		metrics,
		&eventBroadcaster{hub: h, log: log},
	)))

	bridge, err := praxisbridge.New(ctx, opts...)
	if err != nil {
		log.Error("bridge boot failed", "error", err)
		os.Exit(1)
	}
	defer bridge.Close()

	srv := newServer(ctx, log, bridge, metrics, h, cfg.Origins)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.Use(cors.New(corsConfig(cfg.Origins)))
	srv.routes(router)

	caps := bridge.Capabilities()
	log.Info("praxis-bridged listening",
		"addr", cfg.Listen,
		"version", caps.Version,
		"packages", caps.Packages,
		"shims", caps.Shims,
		"degraded", caps.Degraded)

	if err := router.Run(cfg.Listen); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}
