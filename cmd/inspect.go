package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/spf13/cobra"
)

var (
	inspectFormat     string
	inspectSampleRows int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [database-path]",
	Short: "Inspect the discussion database schema",
	Long: `Inspect the schema and contents of a SQLite discussion store.

This command provides detailed information about:
  • Database schema (tables, columns, types)
  • Row counts
  • Sample data from each table

Examples:
  bob inspect                              # Inspect the configured store
  bob inspect /path/to/database.db         # Inspect a specific database
  bob inspect --format json --sample 5     # JSON output with 5 sample rows`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectFormat != "text" && inspectFormat != "json" {
			return fmt.Errorf("unsupported format: %s (supported: text, json)", inspectFormat)
		}

		var path string
		if len(args) > 0 {
			path = args[0]
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL != "" {
				return errors.New("inspect supports only SQLite stores; use psql for PostgreSQL")
			}
			path = cfg.DatabasePath
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("database not found: %w", err)
		}

		db, err := internal.OpenDatabase(path)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		tables, err := internal.InspectSQLite(cmd.Context(), db, inspectSampleRows, 200)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if inspectFormat == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"database": path, "tables": tables})
		}
		printTables(out, path, tables)
		return nil
	},
}

func printTables(out io.Writer, path string, tables []internal.TableInfo) {
	if len(tables) == 0 {
		fmt.Fprintln(out, "⚠️  No tables found in database")
		return
	}

	fmt.Fprintf(out, "📋 Database: %s\n", path)
	fmt.Fprintf(out, "📊 Found %d table(s)\n\n", len(tables))

	for _, t := range tables {
		fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(out, "📦 Table: %s\n", t.Name)
		fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(out, "📊 Rows: %d\n\n", t.Rows)

		fmt.Fprintf(out, "📐 Schema:\n")
		for _, col := range t.Columns {
			pk := ""
			if col.PrimaryKey {
				pk = " [PRIMARY KEY]"
			}
			notNull := ""
			if col.NotNull {
				notNull = " NOT NULL"
			}
			fmt.Fprintf(out, "  • %s: %s%s%s\n", col.Name, col.Type, notNull, pk)
		}
		fmt.Fprintln(out)

		if len(t.Sample) > 0 {
			fmt.Fprintf(out, "📄 Sample Data (first %d rows):\n", len(t.Sample))
			for i, row := range t.Sample {
				fmt.Fprintf(out, "\n  Row %d:\n", i+1)
				for _, col := range t.Columns {
					fmt.Fprintf(out, "    %s: %s\n", col.Name, row[col.Name])
				}
			}
		}
		fmt.Fprintln(out)
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format (text, json)")
	inspectCmd.Flags().IntVar(&inspectSampleRows, "sample", 3, "Number of sample rows to show")
}
