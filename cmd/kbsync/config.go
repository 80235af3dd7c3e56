// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/kbsync/internal/secrets"
	"github.com/pdiddy/kbsync/pkg/types"
)

// viperKeyAnnotation marks a flag with the config key it overrides.
const viperKeyAnnotation = "kbsync/viper-key"

// configKeys lists every config key so each can be set from the
// environment, e.g. KBSYNC_INDEX_VECTOR_STORE_ID for index.vector_store_id.
var configKeys = []string{
	"helpcenter.base_url",
	"helpcenter.locale",
	"helpcenter.max_documents",
	"helpcenter.max_pages",
	"helpcenter.per_page",
	"helpcenter.email",
	"helpcenter.api_token",
	"helpcenter.timeout",
	"helpcenter.user_agent",
	"documents.backend",
	"documents.dir",
	"documents.bolt_path",
	"state.dsn",
	"index.base_url",
	"index.api_key",
	"index.vector_store_id",
	"index.poll_interval",
	"index.batch_timeout",
	"index.max_retries",
	"index.timeout",
	"index.user_agent",
	"sync.workers",
	"sync.prune",
	"sync.dry_run",
	"log.level",
	"log.format",
	"log.file",
}

// bindFlag records that flag overrides key. Binding to viper is deferred to
// loadConfig so that commands sharing a key do not steal each other's flag.
func bindFlag(cmd *cobra.Command, persistent bool, flag, key string) {
	fs := cmd.Flags()
	if persistent {
		fs = cmd.PersistentFlags()
	}
	if err := fs.SetAnnotation(flag, viperKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag, err))
	}
}

// loadConfig binds the running command's annotated flags and decodes the
// merged config file, environment, and flag values. Flags win over the
// environment, which wins over the file.
func loadConfig(v *viper.Viper, cmd *cobra.Command) (types.Config, error) {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[viperKeyAnnotation]
		if !ok || len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(keys[0], f)
	})
	if bindErr != nil {
		return types.Config{}, fmt.Errorf("binding flags: %w", bindErr)
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// applySecrets fills credentials that were not configured explicitly.
func applySecrets(cfg types.Config, s secrets.Secrets) types.Config {
	cfg.Index.APIKey = s.Or(secrets.OpenAIAPIKey, cfg.Index.APIKey)
	cfg.Index.VectorStoreID = s.Or(secrets.OpenAIVectorStoreID, cfg.Index.VectorStoreID)
	cfg.HelpCenter.Email = s.Or(secrets.HelpCenterEmail, cfg.HelpCenter.Email)
	cfg.HelpCenter.APIToken = s.Or(secrets.HelpCenterAPIToken, cfg.HelpCenter.APIToken)
	return cfg
}
