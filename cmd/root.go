package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the expenses-mcp application
var rootCmd = &cobra.Command{
	Use:   "expenses-mcp",
	Short: "MCP server for tracking personal expenses",
	Long: `expenses-mcp is a Model Context Protocol server that lets AI assistants
record and analyze a user's expenses.

Each authenticated user sees only their own expenses. Records are kept in
memory or in Azure Cosmos DB.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "expenses-mcp version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
