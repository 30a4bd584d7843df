// Package cmd implements the command-line interface for expenses-mcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server over stdio or streamable HTTP
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools, resources and prompts
//
// The serve command is the default command when no subcommand is specified.
// Every serve flag is bound to a viper key and an environment variable.
package cmd
