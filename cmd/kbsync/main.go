// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the kbsync CLI.
// kbsync mirrors help center articles into a vector-store index and keeps
// the index in step with the source without re-uploading unchanged content.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/kbsync/internal/logger"
	"github.com/pdiddy/kbsync/internal/secrets"
	"github.com/pdiddy/kbsync/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds credentials read from the secrets directory at startup.
	loadedSecrets secrets.Secrets

	// appConfig is the resolved configuration for the running command.
	appConfig types.Config

	// log is the process logger, built once the config is known.
	log = logger.Discard()

	logCloser io.Closer
	startedAt time.Time
)

// rootCmd is the base command for the kbsync CLI.
var rootCmd = &cobra.Command{
	Use:   "kbsync",
	Short: "Mirror a help center into a vector-store index",
	Long: `kbsync fetches published help center articles, materializes them as
markdown documents, and reconciles those documents against a vector-store
index. Only new and changed documents are uploaded; what is live in the
index is recorded in a sync state store between runs.

Run "kbsync sync" for a full pass, or "kbsync fetch" and "kbsync reconcile"
to schedule the two halves separately.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		startedAt = time.Now()

		cfg, err := loadConfig(viper.GetViper(), cmd)
		if err != nil {
			return err
		}
		l, closer, err := logger.New(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		log, logCloser = l, closer

		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir, log)
		if err != nil {
			return err
		}
		loadedSecrets = s
		appConfig = applySecrets(cfg, s)
		if len(s) > 0 {
			log.Debug("loaded secrets", "keys", s.Names())
		}
		if used := viper.ConfigFileUsed(); used != "" {
			log.Debug("using config file", "path", used)
		}
		log.Info("run started", "command", cmd.Name(), "version", version)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Info("run finished", "command", cmd.Name(), "duration", time.Since(startedAt).Round(time.Millisecond))
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./kbsync.yaml or ~/.config/kbsync/kbsync.yaml)")
	pf.String("secrets-dir", ".secrets", "directory of secret key files")
	pf.String("state", "", "sync state DSN: path, file://, sqlite://, postgres://, or memory:// (default kb_state.json)")
	pf.String("documents-dir", "", "directory for materialized documents (default articles)")
	pf.String("documents-backend", "", "document store: file or bolt (default file)")
	pf.String("log-level", "", "log level: debug, info, warn, error (default info)")
	pf.String("log-format", "", "log format: text or json (default text)")
	pf.String("log-file", "", "also append log records to this file")

	bindFlag(rootCmd, true, "state", "state.dsn")
	bindFlag(rootCmd, true, "documents-dir", "documents.dir")
	bindFlag(rootCmd, true, "documents-backend", "documents.backend")
	bindFlag(rootCmd, true, "log-level", "log.level")
	bindFlag(rootCmd, true, "log-format", "log.format")
	bindFlag(rootCmd, true, "log-file", "log.file")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("kbsync")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "kbsync"))
		}
	}

	setupEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && cfgFile != "" {
			fmt.Fprintln(os.Stderr, "warning: reading config:", err)
		}
	}
}

// setupEnv maps KBSYNC_SECTION_FIELD variables onto section.field keys.
func setupEnv(v *viper.Viper) {
	v.SetEnvPrefix("KBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if log != nil {
			log.Error("run failed", "error", err, "duration", time.Since(startedAt).Round(time.Millisecond))
		}
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}
