package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the available tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d := tools.NewDispatcher(nil, nil)
		catalog := d.Tools()
		if globalFlags.JSON {
			return writeJSON(cmd.OutOrStdout(), catalog)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOOL\tREQUIRED\tOPTIONAL\tDESCRIPTION")
		for _, t := range catalog {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, list(t.Required), list(t.Optional), t.Description)
		}
		return w.Flush()
	},
}

var callFlags struct {
	Args string
}

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Run one tool and print the result as JSON",
	Long: `Run one tool through the same dispatcher used by the HTTP and MCP
front ends and print the result as JSON.

Example:
  aem-assets call list_folders --args '{"path":"/content/dam"}'
  aem-assets call bulk_update_metadata --args '{"folderPath":"/content/dam/x","metadata":{"title":"T"}}'`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callFlags.Args, "args", "", "Tool arguments as a JSON object")

	RootCmd.AddCommand(toolsCmd)
	RootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	toolArgs := map[string]any{}
	if raw := strings.TrimSpace(callFlags.Args); raw != "" {
		if err := json.Unmarshal([]byte(raw), &toolArgs); err != nil {
			return fmt.Errorf("--args must be a JSON object: %w", err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := a.dispatcher.Call(ctx, tools.FrontendCLI, args[0], toolArgs)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{"result": result})
}

func list(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
