package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/expenses-mcp/internal/middleware"
	"github.com/teemow/expenses-mcp/internal/server"
)

// SessionURI is the URI of the current user's session resource.
const SessionURI = "user://session"

// SessionInfo describes the authenticated caller.
type SessionInfo struct {
	UserID        string     `json:"user_id,omitempty"`
	Authenticated bool       `json:"authenticated"`
	TokenID       string     `json:"token_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Description   string     `json:"description"`
}

// RegisterUserResources registers session-specific user resources
func RegisterUserResources(s *mcpserver.MCPServer, sc *server.ServerContext) {
	sessionResource := mcp.NewResource(
		SessionURI,
		"Current Session",
		mcp.WithResourceDescription("Identity of the authenticated user and the expiry of the presented token"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(sessionResource, middleware.WrapResource(sc.Chain(),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return handleSession(ctx, request, sc)
		}))
}

// handleSession returns the caller's user id and, when the verifier recorded
// it, the token expiry.
func handleSession(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	info := SessionInfo{
		UserID:      middleware.UserID(ctx),
		Description: "Session of the authenticated expenses user",
	}
	info.Authenticated = info.UserID != ""

	if info.Authenticated && sc.Sessions() != nil {
		if token, err := sc.Sessions().Session(ctx, info.UserID); err == nil && token != nil {
			info.TokenID = token.AccessToken
			if !token.Expiry.IsZero() {
				expiry := token.Expiry.UTC()
				info.ExpiresAt = &expiry
			}
		}
	}

	jsonData, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
