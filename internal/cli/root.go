// Package cli provides the casbin-mongo commands.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"casbin-mongodb-adapter/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "casbin-mongo",
	Short: "Casbin policy store backed by MongoDB",
	Long: `casbin-mongo serves a Casbin enforcer whose policy lives in MongoDB.

Configuration:
  Config is loaded from casbin-mongo.yaml in the current directory,
  $HOME/.casbin-mongo/, or /etc/casbin-mongo/.

  Environment variables override config values with the CASBIN_MONGO_ prefix.
  Example: CASBIN_MONGO_STORAGE_DRIVER=sqlite

Commands:
  serve       Start the HTTP API
  migrate     Copy rules from a SQL casbin table into the configured store
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./casbin-mongo.yaml)")
}

// flagKeys maps command flags to configuration keys.
var flagKeys = map[string]string{
	"addr":           "server.http_addr",
	"storage-driver": "storage.driver",
	"model":          "model.path",
	"log-level":      "log.level",
}

// loadConfig reads the configuration with flags from fs taking precedence.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	v := config.NewViper(cfgFile)
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok && strings.HasPrefix(f.Name, "mongodb.") {
			key, ok = f.Name, true
		}
		if !ok || !f.Changed {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
	}
	return config.Load(v)
}
