package main

import (
	"fmt"

	"github.com/Sternrassler/wanikani-client/internal/config"
	"github.com/Sternrassler/wanikani-client/pkg/client"
	"github.com/Sternrassler/wanikani-client/pkg/logging"
	"github.com/Sternrassler/wanikani-client/pkg/ratelimit"
	"github.com/Sternrassler/wanikani-client/pkg/retry"
	"github.com/Sternrassler/wanikani-client/pkg/vocab"
	"github.com/Sternrassler/wanikani-client/pkg/wanikani"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app carries the loaded configuration into every subcommand.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger zerolog.Logger

	redis *redis.Client
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	a := &app{v: v}
	var configFile string

	root := &cobra.Command{
		Use:   "wanikani",
		Short: "Read WaniKani user, subject and assignment data",
		Long: `Read WaniKani user, subject and assignment data.

The API token is read from the environment variable named by --token-env
(WANIKANI_TOKEN by default) on every request. Settings are taken from flags,
WANIKANI_* environment variables, or config.yaml in /etc/wanikani,
$HOME/.wanikani or the working directory, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			a.cfg = cfg

			logging.Setup(logging.Config{
				Level:  logging.LogLevel(cfg.Log.Level),
				Pretty: cfg.Log.Pretty,
				Output: cmd.ErrOrStderr(),
			})
			a.logger = logging.NewLogger("cli")
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: search /etc/wanikani, $HOME/.wanikani, .)")
	flags.String("base-url", client.DefaultBaseURL, "WaniKani API root")
	flags.String("token-env", client.DefaultTokenEnv, "environment variable holding the API token")
	flags.Duration("timeout", client.DefaultTimeout, "per-request timeout")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("log-pretty", false, "human-readable logs")
	flags.Bool("rate-limit", true, "pace requests using the RateLimit-* response headers")
	flags.String("redis-addr", "", "share rate limit state through Redis at host:port")

	mustBind(v, config.KeyBaseURL, flags.Lookup("base-url"))
	mustBind(v, config.KeyTokenEnv, flags.Lookup("token-env"))
	mustBind(v, config.KeyTimeout, flags.Lookup("timeout"))
	mustBind(v, config.KeyLogLevel, flags.Lookup("log-level"))
	mustBind(v, config.KeyLogPretty, flags.Lookup("log-pretty"))
	mustBind(v, config.KeyRateLimit, flags.Lookup("rate-limit"))
	mustBind(v, config.KeyRedisAddr, flags.Lookup("redis-addr"))

	root.AddCommand(newUserCmd(a))
	root.AddCommand(newSubjectsCmd(a))
	root.AddCommand(newAssignmentsCmd(a))
	root.AddCommand(newVocabCmd(a))
	root.AddCommand(newServeCmd(a))

	return root
}

// mustBind binds a flag to a config key and panics if the binding fails.
func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

// newClient builds the accessors. The returned func releases connections.
func (a *app) newClient() (*wanikani.Client, func(), error) {
	cc := a.cfg.ClientConfig()
	closers := []func(){}

	if a.cfg.RateLimit.Enabled {
		var store ratelimit.Store
		if addr := a.cfg.RateLimit.RedisAddr; addr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: addr})
			a.redis = rdb
			store = ratelimit.NewRedisStore(rdb)
			closers = append(closers, func() { rdb.Close() })
		}
		cc.RateLimiter = ratelimit.NewTracker(store, logging.NewLogger("ratelimit"))
	}

	transport, err := client.New(cc)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, nil, fmt.Errorf("create client: %w", err)
	}
	closers = append(closers, func() { transport.Close() })

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return wanikani.New(transport, wanikani.WithLogger(logging.NewLogger("wanikani"))), cleanup, nil
}

// vocabConfig maps the vocab settings onto a builder configuration.
func (a *app) vocabConfig() vocab.Config {
	cfg := vocab.DefaultConfig()
	cfg.MinSRSStage = a.cfg.Vocab.MinSRSStage
	cfg.Cumulative = a.cfg.Vocab.Cumulative
	cfg.MaxPages = a.cfg.Vocab.MaxPages
	if a.cfg.Vocab.Retries > 1 {
		rc := retry.DefaultConfig()
		rc.MaxAttempts = a.cfg.Vocab.Retries
		cfg.Retry = &rc
	}
	return cfg
}
