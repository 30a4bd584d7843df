// Package middleware implements the ordered interception chain that wraps
// every MCP tool call, resource read and prompt retrieval.
//
// A Chain runs its stages in order on entry and in reverse on exit. Each
// stage receives the shared Invocation and a continuation that it may call
// at most once:
//
//	chain := middleware.NewChain(
//		middleware.NewTelemetryStage(tracer, true),
//		middleware.NewAuthStage(claims, logger),
//		middleware.NewMetricsStage(metrics, audit),
//	)
//	s.AddTool(tool, middleware.WrapTool(chain, handler))
//
// Handlers read per-request state, such as the resolved user, through
// FromContext and UserID.
package middleware
