package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/config"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/models"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	DBPath  string
	Verbose bool
	JSON    bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "aem-assets",
	Short: "AEM Assets MCP server",
	Long: `aem-assets exposes Adobe Experience Manager Assets as a set of tools
for AI agents, over a JSON HTTP endpoint and the Model Context Protocol.

It authenticates with Adobe IMS using OAuth server-to-server credentials
and, when configured, a JWT service account for the classic Assets API.

Usage:
  aem-assets [command] [flags]

Available Commands:
  serve      Start the HTTP and MCP server
  tools      List the available tools
  call       Run one tool and print the result
  audit      Query the audit ledger
  check      Verify configuration and credentials
  version    Print version information

Flags:
  --config string   Path to configuration file (default "config.yaml")
  --db string       Path to the SQLite audit ledger (enables auditing)
  --verbose         Enable verbose output
  --json            Output in JSON format

Use "aem-assets [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// InitRoot initializes the root command with global flags
func InitRoot() {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = "config.yaml"
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.DBPath, "db", os.Getenv(config.EnvAuditDBPath), "Path to the SQLite audit ledger (enables auditing)")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		info := GetVersionInfo()
		if globalFlags.JSON {
			_ = writeJSON(cmd.OutOrStdout(), info)
			return
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "aem-assets version:", info.Version)
		fmt.Fprintln(out, "Go version:", info.GoVersion)
		fmt.Fprintln(out, "OS/Arch:", info.OS+"/"+info.Arch)
	},
}

var globalFlags GlobalFlags

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   models.ServiceVersion,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
