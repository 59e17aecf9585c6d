package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/store"
)

var auditFlags struct {
	Type     string
	Status   string
	Resource string
	Since    time.Duration
	Limit    int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit ledger",
	Long: `Show recent events from the SQLite audit ledger, newest first.

Example:
  aem-assets audit --db ./data/aem-assets.db --type METADATA_UPDATE --since 24h`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditFlags.Type, "type", "", "Event type (TOKEN_REFRESH, TOKEN_FAILURE, CONFIG_CHANGE, METADATA_UPDATE, BULK_UPDATE, TOOL_CALL)")
	auditCmd.Flags().StringVar(&auditFlags.Status, "status", "", "Event status (success or failure)")
	auditCmd.Flags().StringVar(&auditFlags.Resource, "resource", "", "Asset path, folder path or provider name")
	auditCmd.Flags().DurationVar(&auditFlags.Since, "since", 0, "Only events newer than this duration")
	auditCmd.Flags().IntVar(&auditFlags.Limit, "limit", 50, "Maximum number of events")

	RootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, err := os.Stat(cfg.Audit.DBPath); err != nil {
		return fmt.Errorf("audit ledger not found at %s (enable audit or pass --db)", cfg.Audit.DBPath)
	}

	// Retention 0: a read-only query must not trigger cleanup.
	ledger, err := store.NewSQLiteAuditStoreWithRetention(cfg.Audit.DBPath, 0)
	if err != nil {
		return err
	}
	defer ledger.Close()

	filters := logging.AuditQueryFilters{
		EventType: auditFlags.Type,
		Status:    auditFlags.Status,
		Resource:  auditFlags.Resource,
		Limit:     auditFlags.Limit,
		OrderDesc: true,
	}
	if auditFlags.Since > 0 {
		filters.Since = time.Now().Add(-auditFlags.Since)
	}

	events, err := ledger.QueryEvents(context.Background(), filters)
	if err != nil {
		return err
	}
	return printEvents(cmd, events)
}

func printEvents(cmd *cobra.Command, events []*logging.AuditEvent) error {
	if globalFlags.JSON {
		if events == nil {
			events = []*logging.AuditEvent{}
		}
		return writeJSON(cmd.OutOrStdout(), events)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tACTION\tSTATUS\tACTOR\tRESOURCE\tERROR")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime),
			e.EventType,
			e.Action,
			e.Status,
			dash(e.Actor),
			dash(e.Resource),
			dash(e.ErrorMessage),
		)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
