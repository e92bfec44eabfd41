package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tracekit/internal/server"
	"github.com/matzehuels/tracekit/pkg/artifact"
	"github.com/matzehuels/tracekit/pkg/cache"
	"github.com/matzehuels/tracekit/pkg/config"
	"github.com/matzehuels/tracekit/pkg/session"
)

// serveCommand creates the HTTP server command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		ropts     runnerOpts
		addr      string
		redisAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve conversion sessions over HTTP",
		Long: `Serve conversion sessions over HTTP.

Download artifacts are kept in memory, or in redis when --redis or
[server] redis_addr is set so several instances can share them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("redis") {
				cfg.Server.RedisAddr = redisAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return c.runServe(cmd.Context(), cfg, ropts)
		},
	}

	ropts.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "redis address for download artifacts")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg config.Config, ropts runnerOpts) error {
	runner, err := c.newRunner(cfg, ropts)
	if err != nil {
		return err
	}
	defer runner.Close()

	artifactCache, err := c.artifactCache(ctx, cfg)
	if err != nil {
		return err
	}
	artifacts := artifact.NewStore(artifactCache, nil, cfg.Server.ArtifactTTL.Std())
	defer artifacts.Close()

	srv := server.New(runner, session.NewMemoryStore(), artifacts, c.Logger, server.Config{
		MaxUpload:  cfg.Server.MaxUpload,
		SessionTTL: cfg.Server.SessionTTL.Std(),
		Options:    cfg.PipelineOptions(),
	})

	printInfo("Serving on %s", StyleLink.Render("http://"+displayAddr(cfg.Server.Addr)))
	printNextStep("Create a session", "curl -X POST http://"+displayAddr(cfg.Server.Addr)+"/api/sessions")

	err = srv.ListenAndServe(ctx, cfg.Server.Addr)
	if err == context.Canceled {
		return nil
	}
	return err
}

// artifactCache connects to redis when configured, otherwise memory.
func (c *CLI) artifactCache(ctx context.Context, cfg config.Config) (cache.Cache, error) {
	rc, ok := cfg.RedisConfig()
	if !ok {
		return cache.NewMemoryCache(), nil
	}
	rcache, err := cache.NewRedisCache(ctx, rc)
	if err != nil {
		return nil, err
	}
	c.Logger.Info("artifacts in redis", "addr", rc.Addr)
	return rcache, nil
}

// displayAddr turns ":8080" into "localhost:8080".
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
