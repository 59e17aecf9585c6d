package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:     "check",
	Aliases: []string{"c", "doctor"},
	Short:   "Verify configuration and credentials",
	Long: `Verify the configuration and the Adobe credentials.

This command checks:
- Configuration validity
- OAuth token from Adobe IMS
- Service account JWT exchange (when configured)
- Access to the folders API

Example:
  aem-assets check --json`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

var checkTimeout time.Duration

func init() {
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 30*time.Second, "Overall time limit for the checks")
	RootCmd.AddCommand(checkCmd)
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

const (
	checkOK      = "OK"
	checkWarning = "WARNING"
	checkFail    = "FAIL"
	checkSkipped = "SKIPPED"
)

func runCheck(cmd *cobra.Command, args []string) error {
	results := []CheckResult{}

	cfg, err := loadConfig()
	if err != nil {
		results = append(results, CheckResult{Name: "Configuration", Status: checkFail, Message: err.Error()})
		return outputCheckResults(cmd, results)
	}
	results = append(results, CheckResult{
		Name:    "Configuration",
		Status:  checkOK,
		Message: "Configuration valid",
		Details: fmt.Sprintf("AEM: %s, client: %s", cfg.AEM.BaseURL, cfg.AEM.ClientID),
	})

	a, err := newApp(cfg)
	if err != nil {
		results = append(results, CheckResult{Name: "Audit ledger", Status: checkFail, Message: err.Error()})
		return outputCheckResults(cmd, results)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	results = append(results, a.checkOAuth(ctx), a.checkServiceAccount(ctx), a.checkFolders(ctx))
	for _, h := range a.health.Report().Surfaces {
		a.logger.Debug("upstream surface",
			"surface", h.Surface,
			"requests", h.TotalRequests,
			"failures", h.FailedRequests,
			"latency_ms", h.CurrentLatency.Milliseconds(),
		)
	}
	return outputCheckResults(cmd, results)
}

func (a *app) checkOAuth(ctx context.Context) CheckResult {
	result := CheckResult{Name: "OAuth token", Status: checkOK}
	if _, err := a.oauth.Token(ctx); err != nil {
		result.Status = checkFail
		result.Message = err.Error()
		return result
	}
	result.Message = "Token issued by Adobe IMS"
	result.Details = "expires " + a.oauth.ExpiresAt().Format(time.RFC3339)
	return result
}

func (a *app) checkServiceAccount(ctx context.Context) CheckResult {
	result := CheckResult{Name: "Service account", Status: checkOK}
	if a.serviceAccount == nil {
		result.Status = checkSkipped
		result.Message = "Not configured; classic API operations are unavailable"
		return result
	}
	if _, err := a.serviceAccount.Token(ctx); err != nil {
		result.Status = checkFail
		result.Message = err.Error()
		return result
	}
	result.Message = "JWT exchanged for access token"
	if sa := a.serviceAccount.Account(); sa != nil {
		result.Details = "technical account " + sa.TechnicalAccountID
	}
	return result
}

func (a *app) checkFolders(ctx context.Context) CheckResult {
	result := CheckResult{Name: "Folders API", Status: checkOK}
	folders, err := a.gateway.ListFolders(ctx, "/")
	if err != nil {
		result.Status = checkFail
		result.Message = err.Error()
		return result
	}
	result.Message = fmt.Sprintf("%d folders under /content/dam", len(folders))
	if len(folders) == 0 {
		result.Status = checkWarning
	}
	return result
}

func outputCheckResults(cmd *cobra.Command, results []CheckResult) error {
	failed := false
	for _, r := range results {
		if r.Status == checkFail {
			failed = true
		}
	}

	if globalFlags.JSON {
		if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE\tDETAILS")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Status, r.Message, dash(r.Details))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if failed {
		return fmt.Errorf("health check failed")
	}
	return nil
}
