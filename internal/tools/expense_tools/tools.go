package expense_tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/expenses-mcp/internal/expenses"
	"github.com/teemow/expenses-mcp/internal/logging"
	"github.com/teemow/expenses-mcp/internal/middleware"
	"github.com/teemow/expenses-mcp/internal/server"
)

// Tool names.
const (
	AddUserExpenseTool  = "add_user_expense"
	GetUserExpensesTool = "get_user_expenses"
)

// Messages returned to the caller.
const (
	msgAuthRequired      = "Error: Authentication required (no user_id present)"
	msgAmountNotPositive = "Error: Amount must be positive"
)

// RegisterExpenseTools registers the expense tools with the MCP server.
// Every handler runs through the server context's middleware chain.
func RegisterExpenseTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc.Expenses() == nil {
		return fmt.Errorf("expense repository is not configured")
	}

	addTool := mcp.NewTool(AddUserExpenseTool,
		mcp.WithDescription("Add a new expense for the authenticated user"),
		mcp.WithString("date",
			mcp.Required(),
			mcp.Description("Date of the expense in YYYY-MM-DD format"),
		),
		mcp.WithNumber("amount",
			mcp.Required(),
			mcp.Description("Positive numeric amount of the expense"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Category label"),
			mcp.Enum(categoryNames()...),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Human-readable description of the expense"),
		),
		mcp.WithString("payment_method",
			mcp.Required(),
			mcp.Description("Payment method used"),
			mcp.Enum(paymentMethodNames()...),
		),
	)
	s.AddTool(addTool, middleware.WrapTool(sc.Chain(), handleAddUserExpense(sc)))

	getTool := mcp.NewTool(GetUserExpensesTool,
		mcp.WithDescription("Get the authenticated user's expense data"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(getTool, middleware.WrapTool(sc.Chain(), handleGetUserExpenses(sc)))

	return nil
}

func handleAddUserExpense(sc *server.ServerContext) mcpserver.ToolHandlerFunc {
	logger := logging.WithTool(sc.Logger(), AddUserExpenseTool)

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		amount, err := request.RequireFloat("amount")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error: %v", err)), nil
		}
		if !(amount > 0) {
			return mcp.NewToolResultError(msgAmountNotPositive), nil
		}

		input, err := parseInput(request, amount)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error: %v", err)), nil
		}
		if err := input.Validate(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error: %v", err)), nil
		}

		date := input.Date.Format(expenses.DateLayout)
		logger.InfoContext(ctx, "Adding expense",
			slog.String("amount", expenses.FormatAmount(amount)),
			slog.String("date", date))

		userID := middleware.UserID(ctx)
		if userID == "" {
			return mcp.NewToolResultError(msgAuthRequired), nil
		}

		expense := input.ToExpense(uuid.NewString(), userID)
		if err := sc.Expenses().Create(ctx, expense); err != nil {
			logger.ErrorContext(ctx, "Error adding expense", logging.UserHash(userID), logging.Err(err))
			return mcp.NewToolResultError(fmt.Sprintf("Error: Unable to add expense - %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Successfully added expense: %s for %s on %s",
			expenses.FormatAmount(amount), input.Description, date)), nil
	}
}

func handleGetUserExpenses(sc *server.ServerContext) mcpserver.ToolHandlerFunc {
	logger := logging.WithTool(sc.Logger(), GetUserExpensesTool)

	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := middleware.UserID(ctx)
		if userID == "" {
			return mcp.NewToolResultError(msgAuthRequired), nil
		}

		list, err := sc.Expenses().ListByUser(ctx, userID)
		if err != nil {
			logger.ErrorContext(ctx, "Error reading expenses", logging.UserHash(userID), logging.Err(err))
			return mcp.NewToolResultError(fmt.Sprintf("Error: Unable to retrieve expense data - %v", err)), nil
		}

		return mcp.NewToolResultText(expenses.Summary(list)), nil
	}
}

// parseInput reads the remaining add_user_expense arguments.
func parseInput(request mcp.CallToolRequest, amount float64) (expenses.Input, error) {
	rawDate, err := request.RequireString("date")
	if err != nil {
		return expenses.Input{}, err
	}
	date, err := expenses.ParseDate(rawDate)
	if err != nil {
		return expenses.Input{}, err
	}

	rawCategory, err := request.RequireString("category")
	if err != nil {
		return expenses.Input{}, err
	}
	category, err := expenses.ParseCategory(rawCategory)
	if err != nil {
		return expenses.Input{}, err
	}

	rawPayment, err := request.RequireString("payment_method")
	if err != nil {
		return expenses.Input{}, err
	}
	payment, err := expenses.ParsePaymentMethod(rawPayment)
	if err != nil {
		return expenses.Input{}, err
	}

	description, err := request.RequireString("description")
	if err != nil {
		return expenses.Input{}, err
	}

	return expenses.Input{
		Date:          date,
		Amount:        amount,
		Category:      category,
		Description:   strings.TrimSpace(description),
		PaymentMethod: payment,
	}, nil
}

func categoryNames() []string {
	var names []string
	for _, c := range expenses.Categories() {
		names = append(names, string(c))
	}
	return names
}

func paymentMethodNames() []string {
	var names []string
	for _, p := range expenses.PaymentMethods() {
		names = append(names, string(p))
	}
	return names
}
