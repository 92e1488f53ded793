// Package supercouch wires the CLI entry point: flag parsing, logger
// construction, and the stdio protocol loop.
package supercouch

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	iconfig "supercouch/internal/config"
	"supercouch/internal/diagnostics"
	"supercouch/queryserver"
	"supercouch/sset/redis"
)

// RootCmd is the supercouch binary's only command: it reads the stdio
// line protocol from stdin and writes responses to stdout until EOF.
var RootCmd = &cobra.Command{
	Use:           "supercouch",
	Short:         "a CouchDB query-server that diverts $SSET emissions into a Redis sorted-set index",
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := RootCmd.Flags()
	flags.String("redis-url", "", "sorted-set backend URL (redis://, rediss://, or redis-cluster://)")
	flags.Bool("emit-sset", false, "keep $SSET-diverted emissions in the normal view output as well")
	flags.String("log-file", "", "append engine logs to this file in addition to stdout/stderr")
	flags.String("syslog-url", "", "also send engine logs to this TCP syslog address")
	flags.Bool("verbose", false, "raise log level to info")
	flags.Bool("debug", false, "raise log level to debug")

	viper.BindPFlag("redis_url", flags.Lookup("redis-url"))
	viper.BindPFlag("emit_sset", flags.Lookup("emit-sset"))
	viper.BindPFlag("log_file", flags.Lookup("log-file"))
	viper.BindPFlag("syslog_url", flags.Lookup("syslog-url"))
	viper.BindPFlag("verbose", flags.Lookup("verbose"))
	viper.BindPFlag("debug", flags.Lookup("debug"))
	viper.SetEnvPrefix("SUPERCOUCH")
	viper.AutomaticEnv()
}

func run(cmd *cobra.Command, args []string) error {
	cfg := iconfig.Config{
		RedisURL:  viper.GetString("redis_url"),
		EmitSSet:  viper.GetBool("emit_sset"),
		LogFile:   viper.GetString("log_file"),
		SyslogURL: viper.GetString("syslog_url"),
		Verbose:   viper.GetBool("verbose"),
		Debug:     viper.GetBool("debug"),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// Usage is printed for flag and validation errors only, not for
	// failures once the engine is being wired up or running.
	cmd.SilenceUsage = true

	logger, err := diagnostics.New(diagnostics.Config{
		LogFile:   cfg.LogFile,
		SyslogURL: cfg.SyslogURL,
		Verbose:   cfg.Verbose,
		Debug:     cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("supercouch: build logger: %w", err)
	}

	svc, err := redis.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("supercouch: connect sorted-set backend: %w", err)
	}

	engine := queryserver.New(svc, queryserver.Config{EmitSSet: cfg.EmitSSet}, logger)

	logger.WithField("redis_url", cfg.RedisURL).Info("supercouch query-server starting")
	return engine.Run(cmd.Context(), os.Stdin, os.Stdout)
}

// Execute runs RootCmd, returning the process exit code: 0 on a clean
// EOF, 1 on any usage or runtime error.
func Execute(ctx context.Context) int {
	RootCmd.SetContext(ctx)
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "supercouch:", err)
		return 1
	}
	return 0
}
