package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"casbin-mongodb-adapter/internal/adapters/driven/persistence/mongodb"
	"casbin-mongodb-adapter/internal/core/domain"
	"casbin-mongodb-adapter/internal/core/services"
	"casbin-mongodb-adapter/internal/logging"
)

var (
	migrateSource string
	migrateClear  bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy rules from a SQL casbin table into the configured store",
	Long: `Read every rule from the casbin_rule table of a SQLite database written by
the gorm adapter and save it into the configured store.

Examples:
  casbin-mongo migrate --source ./casbin.db
  casbin-mongo migrate --source ./casbin.db --clear --mongodb.database authz`,
	RunE: runMigrate,
}

func init() {
	fs := migrateCmd.Flags()
	fs.StringVar(&migrateSource, "source", "", "SQLite database holding the casbin_rule table")
	fs.BoolVar(&migrateClear, "clear", false, "remove all rules from the destination first")
	fs.String("storage-driver", "", "destination storage driver: mongodb, sqlite or memory")
	fs.String("model", "", "casbin model file (default: built-in RBAC with domains)")
	mongodb.NewOptions().AddFlags(fs)
	_ = migrateCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	src, err := openSQLite(migrateSource)
	if err != nil {
		return err
	}
	defer closeSQLite(src, log)

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	defer closeStore()

	m, err := services.LoadModel(cfg.Model.Path)
	if err != nil {
		return err
	}

	n, err := migrateRules(ctx, src, newPolicyAdapter(store, cfg, log), m, migrateClear)
	if err != nil {
		return err
	}
	log.Info("migration complete", "rules", n, "source", migrateSource, "destination", cfg.Storage.Driver)
	fmt.Fprintf(cmd.OutOrStdout(), "migrated %d rules\n", n)
	return nil
}

// migrateRules loads all rules from the gorm adapter table in src into m and
// saves them through dst. It returns the number of rules copied.
func migrateRules(ctx context.Context, src *gorm.DB, dst *services.PolicyAdapter, m model.Model, clear bool) (int, error) {
	source, err := gormadapter.NewAdapterByDB(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source adapter: %w", err)
	}

	m.ClearPolicy()
	if err := source.LoadPolicy(m); err != nil {
		return 0, fmt.Errorf("failed to load source policy: %w", err)
	}

	if clear {
		if err := dst.ClearPolicy(ctx); err != nil {
			return 0, err
		}
	}
	if err := dst.SavePolicyCtx(ctx, m); err != nil {
		return 0, err
	}

	n := 0
	for _, section := range []string{domain.SectionPolicy, domain.SectionGrouping} {
		for _, ast := range m[section] {
			n += len(ast.Policy)
		}
	}
	return n, nil
}
