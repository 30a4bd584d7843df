package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/expenses-mcp/internal/middleware"
	"github.com/teemow/expenses-mcp/internal/server"
)

// AnalyzeSpendingPrompt is the name of the spending analysis prompt.
const AnalyzeSpendingPrompt = "analyze_spending_prompt"

const analyzeSpendingTemplate = `Please analyze my spending patterns%s and provide:

1. Total spending breakdown by category
2. Average daily/weekly spending
3. Most expensive single transaction
4. Payment method distribution
5. Spending trends or unusual patterns
6. Recommendations for budget optimization

Use the expense data to generate actionable insights.`

// RegisterPrompts registers all prompts with the MCP server.
func RegisterPrompts(s *mcpserver.MCPServer, sc *server.ServerContext) {
	prompt := mcp.NewPrompt(AnalyzeSpendingPrompt,
		mcp.WithPromptDescription("Generate a prompt to analyze spending patterns with optional filters"),
		mcp.WithArgument("category",
			mcp.ArgumentDescription("Only analyze expenses in this category"),
		),
		mcp.WithArgument("start_date",
			mcp.ArgumentDescription("Start of the period, YYYY-MM-DD"),
		),
		mcp.WithArgument("end_date",
			mcp.ArgumentDescription("End of the period, YYYY-MM-DD"),
		),
	)
	s.AddPrompt(prompt, middleware.WrapPrompt(sc.Chain(), handleAnalyzeSpending))
}

func handleAnalyzeSpending(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := AnalyzeSpending(
		request.Params.Arguments["category"],
		request.Params.Arguments["start_date"],
		request.Params.Arguments["end_date"],
	)
	return mcp.NewGetPromptResult(
		"Analyze spending patterns",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		},
	), nil
}

// AnalyzeSpending renders the analysis request. Empty filters are left out.
func AnalyzeSpending(category, startDate, endDate string) string {
	var filters []string
	if category != "" {
		filters = append(filters, "Category: "+category)
	}
	if startDate != "" {
		filters = append(filters, "From: "+startDate)
	}
	if endDate != "" {
		filters = append(filters, "To: "+endDate)
	}

	filterText := ""
	if len(filters) > 0 {
		filterText = " (" + strings.Join(filters, ", ") + ")"
	}
	return fmt.Sprintf(analyzeSpendingTemplate, filterText)
}
