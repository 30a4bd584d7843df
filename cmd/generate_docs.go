package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/expenses-mcp/internal/expenses"
	"github.com/teemow/expenses-mcp/internal/server"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools, resources
and prompts. This command introspects the registered capabilities and outputs
their documentation in markdown format, ensuring the documentation is always
accurate and in sync with the actual implementations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.Context(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(ctx context.Context, outputFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	markdown, err := buildDocs(ctx)
	if err != nil {
		return err
	}

	// Write to output
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}

	return nil
}

// buildDocs registers everything on a throwaway server backed by an
// in-memory repository and renders the result.
func buildDocs(ctx context.Context) (string, error) {
	serverContext, err := server.NewServerContext(ctx, server.WithExpenseRepository(expenses.NewMemoryRepository()))
	if err != nil {
		return "", fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = serverContext.Shutdown()
	}()

	mcpSrv := newMCPServer()
	if err := registerAll(mcpSrv, serverContext); err != nil {
		return "", err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}

	var listedResources struct {
		Resources []mcp.Resource `json:"resources"`
	}
	if err := listVia(ctx, mcpSrv, "resources/list", &listedResources); err != nil {
		return "", err
	}

	var listedPrompts struct {
		Prompts []mcp.Prompt `json:"prompts"`
	}
	if err := listVia(ctx, mcpSrv, "prompts/list", &listedPrompts); err != nil {
		return "", err
	}

	return generateMarkdown(tools, listedResources.Resources, listedPrompts.Prompts), nil
}

// listVia issues a JSON-RPC list request against the server and decodes
// its result into out.
func listVia(ctx context.Context, s *mcpserver.MCPServer, method string, out any) error {
	req := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":{}}`, method)
	data, err := json.Marshal(s.HandleMessage(ctx, json.RawMessage(req)))
	if err != nil {
		return fmt.Errorf("failed to encode %s response: %w", method, err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s failed: %s", method, envelope.Error.Message)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func generateMarkdown(tools []mcp.Tool, resources []mcp.Resource, prompts []mcp.Prompt) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# MCP Reference\n\n")
	sb.WriteString("This document lists everything available when running expenses-mcp as an MCP server.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the definitions.\n\n")

	sb.WriteString("## Table of Contents\n\n")
	sb.WriteString("- [Tools](#tools)\n")
	sb.WriteString("- [Resources](#resources)\n")
	sb.WriteString("- [Prompts](#prompts)\n\n")

	sb.WriteString("## Authentication\n\n")
	sb.WriteString("Over streamable HTTP every call requires a bearer token. Expenses are scoped to the\n")
	sb.WriteString("token's `oid` claim, falling back to `sub`.\n\n")

	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})
	sb.WriteString("## Tools\n\n")
	for _, tool := range tools {
		sb.WriteString(generateToolMarkdown(tool))
		sb.WriteString("\n")
	}

	sort.Slice(resources, func(i, j int) bool {
		return resources[i].URI < resources[j].URI
	})
	sb.WriteString("## Resources\n\n")
	for _, r := range resources {
		sb.WriteString(fmt.Sprintf("### %s\n\n", r.URI))
		if r.Description != "" {
			sb.WriteString(r.Description + "\n\n")
		}
		if r.MIMEType != "" {
			sb.WriteString(fmt.Sprintf("MIME type: `%s`\n\n", r.MIMEType))
		}
	}

	sort.Slice(prompts, func(i, j int) bool {
		return prompts[i].Name < prompts[j].Name
	})
	sb.WriteString("## Prompts\n\n")
	for _, p := range prompts {
		sb.WriteString(fmt.Sprintf("### %s\n\n", p.Name))
		if p.Description != "" {
			sb.WriteString(p.Description + "\n\n")
		}
		if len(p.Arguments) > 0 {
			sb.WriteString("**Arguments:**\n")
			for _, arg := range p.Arguments {
				requiredStr := "optional"
				if arg.Required {
					requiredStr = "required"
				}
				sb.WriteString(fmt.Sprintf("- `%s` (%s): %s\n", arg.Name, requiredStr, arg.Description))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	// Tool name
	sb.WriteString(fmt.Sprintf("### %s\n\n", tool.Name))

	// Description
	if tool.Description != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", tool.Description))
	}

	// Input schema
	if len(tool.InputSchema.Properties) > 0 {
		sb.WriteString("**Arguments:**\n")

		// Sort properties for consistent output
		propNames := make([]string, 0, len(tool.InputSchema.Properties))
		for name := range tool.InputSchema.Properties {
			propNames = append(propNames, name)
		}
		sort.Strings(propNames)

		for _, name := range propNames {
			prop := tool.InputSchema.Properties[name]
			isRequired := contains(tool.InputSchema.Required, name)

			requiredStr := "optional"
			if isRequired {
				requiredStr = "required"
			}

			// Get property type and description from the property map
			propMap, ok := prop.(map[string]interface{})
			if !ok {
				continue
			}

			propType := getPropertyType(propMap)

			sb.WriteString(fmt.Sprintf("- `%s` (%s, %s): ", name, propType, requiredStr))

			// Get description
			if desc, ok := propMap["description"].(string); ok {
				sb.WriteString(desc)
			} else {
				sb.WriteString(fmt.Sprintf("%s parameter", propType))
			}

			if enum, ok := propMap["enum"].([]string); ok && len(enum) > 0 {
				sb.WriteString(fmt.Sprintf(" One of: `%s`.", strings.Join(enum, "`, `")))
			}

			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func getPropertyType(prop map[string]interface{}) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
