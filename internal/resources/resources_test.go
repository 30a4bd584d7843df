package resources

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/giantswarm/mcp-oauth/storage/memory"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/expenses-mcp/internal/auth"
	"github.com/teemow/expenses-mcp/internal/expenses"
	"github.com/teemow/expenses-mcp/internal/middleware"
	"github.com/teemow/expenses-mcp/internal/server"
)

func newServerContext(t *testing.T, opts ...server.Option) *server.ServerContext {
	t.Helper()
	opts = append([]server.Option{
		server.WithExpenseRepository(expenses.NewMemoryRepository()),
		server.WithChain(middleware.NewChain(middleware.NewAuthStage(auth.ContextClaims{}, nil))),
	}, opts...)
	sc, err := server.NewServerContext(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func readRequest(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Method = "resources/read"
	req.Params.URI = uri
	return req
}

func decode(t *testing.T, contents []mcp.ResourceContents, out any) {
	t.Helper()
	require.Len(t, contents, 1)
	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", text.MIMEType)
	require.NoError(t, json.Unmarshal([]byte(text.Text), out))
}

func TestCategories(t *testing.T) {
	sc := newServerContext(t)
	contents, err := middleware.WrapResource(sc.Chain(), handleCategories)(context.Background(), readRequest(CategoriesURI))
	require.NoError(t, err)

	var catalog Catalog
	decode(t, contents, &catalog)
	assert.Equal(t, []expenses.Category{"food", "transport", "entertainment", "shopping", "gadget", "other"}, catalog.Categories)
	assert.Equal(t, []expenses.PaymentMethod{"amex", "visa", "cash"}, catalog.PaymentMethods)
	assert.Equal(t, "YYYY-MM-DD", catalog.DateFormat)
}

func TestSession(t *testing.T) {
	store := memory.New()
	defer store.Stop()
	sessions := auth.NewSessionRecorder(store)
	sc := newServerContext(t, server.WithSessionRecorder(sessions))

	handler := middleware.WrapResource(sc.Chain(), func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSession(ctx, req, sc)
	})

	t.Run("anonymous", func(t *testing.T) {
		contents, err := handler(context.Background(), readRequest(SessionURI))
		require.NoError(t, err)

		var info SessionInfo
		decode(t, contents, &info)
		assert.False(t, info.Authenticated)
		assert.Empty(t, info.UserID)
		assert.Nil(t, info.ExpiresAt)
	})

	t.Run("recorded token", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		claims := jwt.MapClaims{"oid": "user-42", "exp": float64(exp.Unix())}
		require.NoError(t, sessions.Record(context.Background(), claims, "raw-token"))

		contents, err := handler(auth.WithClaims(context.Background(), claims), readRequest(SessionURI))
		require.NoError(t, err)

		var info SessionInfo
		decode(t, contents, &info)
		assert.True(t, info.Authenticated)
		assert.Equal(t, "user-42", info.UserID)
		assert.Equal(t, auth.TokenFingerprint("raw-token"), info.TokenID)
		require.NotNil(t, info.ExpiresAt)
		assert.True(t, exp.Equal(*info.ExpiresAt))
	})

	t.Run("no recorded token", func(t *testing.T) {
		ctx := auth.WithClaims(context.Background(), jwt.MapClaims{"sub": "fresh-user"})
		contents, err := handler(ctx, readRequest(SessionURI))
		require.NoError(t, err)

		var info SessionInfo
		decode(t, contents, &info)
		assert.True(t, info.Authenticated)
		assert.Equal(t, "fresh-user", info.UserID)
		assert.Empty(t, info.TokenID)
	})
}

func TestRegister(t *testing.T) {
	sc := newServerContext(t)
	s := mcpserver.NewMCPServer("expenses-test", "0.0.0", mcpserver.WithResourceCapabilities(false, false))
	RegisterExpenseResources(s, sc)
	RegisterUserResources(s, sc)

	data, err := json.Marshal(s.HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"expenses://categories"}}`)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "gadget")
}
