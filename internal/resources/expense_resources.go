package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/expenses-mcp/internal/expenses"
	"github.com/teemow/expenses-mcp/internal/middleware"
	"github.com/teemow/expenses-mcp/internal/server"
)

// CategoriesURI lists the accepted expense enums.
const CategoriesURI = "expenses://categories"

// Catalog is the body of the categories resource.
type Catalog struct {
	Categories     []expenses.Category      `json:"categories"`
	PaymentMethods []expenses.PaymentMethod `json:"payment_methods"`
	DateFormat     string                   `json:"date_format"`
}

// RegisterExpenseResources registers the expense catalog resource.
func RegisterExpenseResources(s *mcpserver.MCPServer, sc *server.ServerContext) {
	categories := mcp.NewResource(
		CategoriesURI,
		"Expense Categories",
		mcp.WithResourceDescription("Categories and payment methods accepted by add_user_expense"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(categories, middleware.WrapResource(sc.Chain(), handleCategories))
}

func handleCategories(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(Catalog{
		Categories:     expenses.Categories(),
		PaymentMethods: expenses.PaymentMethods(),
		DateFormat:     "YYYY-MM-DD",
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
