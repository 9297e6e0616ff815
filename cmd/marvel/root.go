package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/marvel-client/internal/config"
	"github.com/Sternrassler/marvel-client/pkg/client"
	"github.com/Sternrassler/marvel-client/pkg/logging"
)

const (
	cmdName     = "marvel"
	cmdDesc     = `Page through the Marvel character list.`
	cmdExamples = `
	# First page of characters.
	marvel list

	# Characters whose name starts with "Spider".
	marvel list --name Spider

	# Everything, fetched in parallel.
	marvel list --all

	# Interactive browser with infinite scrolling.
	marvel browse

	# HTTP proxy with cache and quota tracking.
	REDIS_URL=localhost:6379 marvel serve
`
)

var allLevels = []string{"debug", "info", "warn", "error", "disabled"}

type rootArgs struct {
	EnvFile   string
	LogLevel  string
	LogPretty bool

	// set by setup
	cfg *config.Config
}

func (ra *rootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&ra.EnvFile, "env-file", "", "Read configuration from this file instead of ./.env")
	cmd.PersistentFlags().StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %v (overrides LOG_LEVEL)", allLevels))
	cmd.PersistentFlags().BoolVar(&ra.LogPretty, "log-pretty", false, "Human readable log output (overrides LOG_PRETTY)")

	err := cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(allLevels, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

func newRootCmd() *cobra.Command {
	args := &rootArgs{}

	cmd := &cobra.Command{
		Use:               cmdName,
		Short:             cmdDesc,
		Example:           cmdExamples,
		SilenceUsage:      true,
		PersistentPreRunE: args.setup,
	}

	args.AddFlags(cmd)
	cmd.AddCommand(
		newListCmd(args),
		newBrowseCmd(args),
		newServeCmd(args),
	)

	return cmd
}

// setup loads configuration and configures the global logger.
func (ra *rootArgs) setup(cmd *cobra.Command, _ []string) error {
	var cfg *config.Config
	if ra.EnvFile != "" {
		var err error
		if cfg, err = config.LoadFile(ra.EnvFile); err != nil {
			return err
		}
	} else {
		cfg = config.Load()
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = ra.LogLevel
	}
	if cmd.Flags().Changed("log-pretty") {
		cfg.LogPretty = ra.LogPretty
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lc := cfg.Logging()
	lc.Output = cmd.ErrOrStderr()
	logging.Setup(lc)

	ra.cfg = cfg
	return nil
}

// backend is a Marvel client plus the optional Redis connection behind it.
type backend struct {
	client *client.Client
	redis  *redis.Client
}

// newBackend connects to Redis when configured and creates the client.
func newBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}

	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, err
	}
	if opts != nil {
		b.redis = redis.NewClient(opts)
		if err := b.redis.Ping(ctx).Err(); err != nil {
			_ = b.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	cc := client.DefaultConfig(b.redis, cfg.PublicKey, cfg.PrivateKey)
	cc.BaseURL = cfg.BaseURL
	cc.Timeout = cfg.HTTPTimeout
	cc.DailyQuota = cfg.DailyQuota

	b.client, err = client.New(cc)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create marvel client: %w", err)
	}
	return b, nil
}

// Close releases the client and the Redis connection.
func (b *backend) Close() {
	if b.client != nil {
		_ = b.client.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}
