package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/flowstate/db"
	"github.com/teranos/flowstate/version"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the flowstate database",
	Long: `db - Manage the flowstate database

Examples:
  flowstate db migrate                  # Apply pending migrations
  flowstate db stats                    # Row counts per table`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per table",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	pterm.Success.Printfln("Schema is at version %s (%s)", version.SchemaVersion, cfg.Database.Driver)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	loader, cfg, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()
	ctx := cmd.Context()

	executions, err := loader.Flows.Count(ctx)
	if err != nil {
		return err
	}
	active, err := loader.Active.List(ctx)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Database Statistics")
	pterm.Printfln("Driver:      %s", cfg.Database.Driver)
	if cfg.Database.Driver != db.DriverMySQL {
		pterm.Printfln("Path:        %s", cfg.Database.Path)
	}
	pterm.Printfln("Executions:  %d", executions)
	pterm.Printfln("Active:      %d", len(active))
	pterm.Printfln("Encoding:    %s", cfg.Store.Encoding)
	pterm.Printfln("Log chunk:   %d bytes", cfg.Store.LogChunkSize)
	return nil
}
