/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	storeMemory = "memory"
	storeRedis  = "redis"
)

type Config struct {
	bind           string
	port           int
	prefix         string
	profile        bool
	redisPrefix    string
	redisURL       string
	roomTTL        time.Duration
	sessionTimeout time.Duration
	store          string
	storeTimeout   time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
	words          string

	log *zap.SugaredLogger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.store {
	case storeMemory:
	case storeRedis:
		if c.redisURL == "" {
			return errors.New("--redis-url is required when --store=redis")
		}
	default:
		return fmt.Errorf("invalid store (must be %q or %q): %q", storeMemory, storeRedis, c.store)
	}
	if c.storeTimeout <= 0 {
		return fmt.Errorf("invalid store timeout (must be positive): %s", c.storeTimeout)
	}
	if c.sessionTimeout <= 0 {
		return fmt.Errorf("invalid session timeout (must be positive): %s", c.sessionTimeout)
	}
	if c.roomTTL < 0 {
		return fmt.Errorf("invalid room ttl (must not be negative): %s", c.roomTTL)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("IMPOSTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "impostor",
		Short:         "A realtime word party game: everyone gets the same ten words, except the impostor.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg.log = logger.Sugar()

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: IMPOSTOR_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: IMPOSTOR_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: IMPOSTOR_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: IMPOSTOR_PROFILE)")
	fs.StringVar(&cfg.redisPrefix, "redis-prefix", "impostor:", "key prefix for rooms stored in redis (env: IMPOSTOR_REDIS_PREFIX)")
	fs.StringVar(&cfg.redisURL, "redis-url", "", "redis connection url, e.g. redis://localhost:6379/0 (env: IMPOSTOR_REDIS_URL)")
	fs.DurationVar(&cfg.roomTTL, "room-ttl", 0, "expire rooms in redis after this long without changes, 0 to keep forever (env: IMPOSTOR_ROOM_TTL)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before unused lobby sessions and idle rooms are released (env: IMPOSTOR_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.store, "store", storeMemory, "room store backend: memory or redis (env: IMPOSTOR_STORE)")
	fs.DurationVar(&cfg.storeTimeout, "store-timeout", 2*time.Second, "time limit for each room store operation (env: IMPOSTOR_STORE_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: IMPOSTOR_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: IMPOSTOR_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: IMPOSTOR_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: IMPOSTOR_VERSION)")
	fs.StringVar(&cfg.words, "words", "", "file with one word per line to use instead of the built-in list (env: IMPOSTOR_WORDS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("impostor v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
