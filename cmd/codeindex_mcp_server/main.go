package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/flarexio/codeindex"

	mcpE "github.com/flarexio/codeindex/mcp"
	natsT "github.com/flarexio/codeindex/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "codeindex_mcp_server",
		Usage: "codeindex MCP Server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats",
				Usage:   "NATS server URL",
				Value:   nats.DefaultURL,
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.StringFlag{
				Name:    "nats-creds",
				Usage:   "NATS user credentials file",
				Sources: cli.EnvVars("NATS_CREDS"),
			},
			&cli.StringFlag{
				Name:  "edge-id",
				Usage: "Edge ID of the codeindex service. If not specified, uses the shared codeindex topic",
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// stdout carries the protocol, so logs go to stderr.
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}

	log, err := cfg.Build()
	if err != nil {
		return err
	}
	defer log.Sync()

	edgeID := cmd.String("edge-id")
	natsURL := cmd.String("nats")

	opts := []nats.Option{
		nats.Name("codeindex MCP Server"),
	}

	if natsCreds := cmd.String("nats-creds"); natsCreds != "" {
		opts = append(opts, nats.UserCredentials(natsCreds))
	}

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return err
	}
	defer nc.Drain()

	topic := "codeindex"
	if edgeID != "" {
		topic = fmt.Sprintf("edges.%s.codeindex", edgeID)
	}

	endpoints := natsT.MakeEndpoints(nc, topic)

	var svc codeindex.Service
	svc = codeindex.ProxyMiddleware(endpoints)(svc)

	s := NewStdioMCPServer(os.Stdin, os.Stdout, log)
	for method, endpoint := range mcpE.MakeEndpoints(svc) {
		s.AddEndpoint(method, endpoint)
	}

	go func() {
		if err := s.Listen(ctx); err != nil && ctx.Err() == nil {
			log.Error("stdio listener stopped", zap.Error(err))
		}

		cancel()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-quit:
	case <-ctx.Done():
	}

	cancel()
	return nil
}
