package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v10"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/flarexio/codeindex"
	"github.com/flarexio/codeindex/embedding"
	"github.com/flarexio/codeindex/grammar"
	"github.com/flarexio/codeindex/manifest"
	"github.com/flarexio/codeindex/persistence/bolt"
	"github.com/flarexio/codeindex/persistence/chromem"
	"github.com/flarexio/codeindex/persistence/qdrant"
	"github.com/flarexio/codeindex/segment"
	"github.com/flarexio/codeindex/vector"

	mcpE "github.com/flarexio/codeindex/mcp"
	httpT "github.com/flarexio/codeindex/transport/http"
	natsT "github.com/flarexio/codeindex/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "codeindex",
		Usage: "Code indexing service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path to the codeindex service",
			},
			&cli.StringFlag{
				Name:    "nats",
				Usage:   "NATS server URL, empty disables the NATS transport",
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.BoolFlag{
				Name:  "http",
				Usage: "Enable HTTP transport",
				Value: false,
			},
			&cli.StringFlag{
				Name:    "http-addr",
				Usage:   "HTTP server address",
				Value:   ":8080",
				Sources: cli.EnvVars("HTTP_ADDR"),
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func loadConfig(path string) (codeindex.Config, error) {
	var cfg codeindex.Config

	f, err := os.Open(filepath.Join(path, "config.yaml"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults and environment only

	case err != nil:
		return cfg, err

	default:
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}

	cfg.Defaults()

	if cfg.Vector.Path == "" {
		cfg.Vector.Path = filepath.Join(path, "vectors")
	}

	if cfg.Manifest.Path == "" {
		cfg.Manifest.Path = filepath.Join(path, "manifest.db")
	}

	return cfg, nil
}

func newStore(cfg vector.Config, log *zap.Logger) (vector.Store, error) {
	switch cfg.Provider {
	case vector.ProviderQdrant:
		return qdrant.NewStore(cfg, qdrant.WithLogger(log))
	case vector.ProviderChromem:
		return chromem.NewStore(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", vector.ErrUnknownProvider, cfg.Provider)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		path = filepath.Join(homeDir, ".flarex", "codeindex")
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)

	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	loader := grammar.NewLoader(
		grammar.WithLanguages(cfg.Grammar.Languages...),
		grammar.WithLogger(log),
	)

	if !loader.Initialize(ctx) {
		log.Warn("syntax-aware segmentation unavailable, falling back to paragraphs")
	}

	segmenter := segment.NewSegmenter(loader, log)

	ollama, err := embedding.NewOllama(cfg.Embedding.URL, cfg.Embedding.Timeout)
	if err != nil {
		return err
	}

	embedder := embedding.NewClient(ollama,
		embedding.WithConcurrency(cfg.Embedding.Concurrency),
		embedding.WithLogger(log),
	)

	store, err := newStore(cfg.Vector, log)
	if err != nil {
		return err
	}

	var files manifest.Manifest
	if cfg.Manifest.IsEnabled() {
		files, err = bolt.NewManifest(cfg.Manifest.Path)
		if err != nil {
			store.Close()
			return err
		}
	}

	svc, err := codeindex.NewService(cfg, segmenter, embedder, store, files)
	if err != nil {
		store.Close()
		if files != nil {
			files.Close()
		}

		return err
	}
	defer svc.Close()

	svc = codeindex.LoggingMiddleware(log)(svc)
	svc = codeindex.InstrumentingMiddleware(codeindex.NewMetrics())(svc)
	svc = codeindex.TracingMiddleware()(svc)

	endpoints := codeindex.MakeEndpoints(svc).
		Middleware(codeindex.TimeoutMiddleware(cfg.Server.RequestTimeout.Duration()))

	// Add NATS Transport
	if natsURL := cmd.String("nats"); natsURL != "" {
		opts := []nats.Option{
			nats.Name("codeindex"),
		}

		natsCreds := filepath.Join(path, "user.creds")
		if _, err := os.Stat(natsCreds); err == nil {
			opts = append(opts, nats.UserCredentials(natsCreds))
		}

		nc, err := nats.Connect(natsURL, opts...)
		if err != nil {
			return err
		}
		defer nc.Drain()

		srv, err := micro.AddService(nc, micro.Config{
			Name:    "codeindex",
			Version: "1.0.0",
		})

		if err != nil {
			return err
		}
		defer srv.Stop()

		topic := "codeindex"
		if idBytes, err := os.ReadFile(filepath.Join(path, "id")); err == nil {
			topic = "edges." + strings.TrimSpace(string(idBytes)) + ".codeindex"
		}

		root := srv.AddGroup(topic)
		natsT.AddEndpoints(root, endpoints)

		log.Info("nats transport started", zap.String("topic", topic))
	}

	httpEnabled := cmd.Bool("http")
	if httpEnabled {
		r := gin.Default()
		httpT.AddRouters(r, endpoints)
		httpT.AddMetricsRouter(r)
		httpT.AddStreamableRouters(r, mcpE.MakeEndpoints(svc))

		httpAddr := cmd.String("http-addr")
		go r.Run(httpAddr)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	log.Info("graceful shutdown", zap.String("signal", sign.String()))
	return nil
}
