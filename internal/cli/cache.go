package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tracekit/pkg/cache"
)

// cacheCommand creates the cache inspection command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the trace and artifact caches",
	}

	cmd.AddCommand(c.cacheStatusCommand())

	return cmd
}

// cacheStatusCommand creates the "cache status" subcommand.
func (c *CLI) cacheStatusCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache settings and check the artifact backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			source := "defaults"
			if c.configExists() {
				source = "config file"
			}
			printKeyValue("Settings", source)

			traces := "disabled"
			if cfg.Cache.Enabled {
				traces = fmt.Sprintf("memory, ttl %s", cfg.Cache.TTL.Std())
			}
			printKeyValue("Traces", traces)

			rc, ok := cfg.RedisConfig()
			if !ok {
				printKeyValue("Artifacts", fmt.Sprintf("memory, ttl %s", cfg.Server.ArtifactTTL.Std()))
				return nil
			}
			printKeyValue("Artifacts", fmt.Sprintf("redis %s, ttl %s", rc.Addr, cfg.Server.ArtifactTTL.Std()))

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			rcache, err := cache.NewRedisCache(ctx, rc)
			if err != nil {
				printError("redis unreachable: %v", err)
				return err
			}
			defer rcache.Close()
			printSuccess("redis reachable")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "redis connection timeout")

	return cmd
}
