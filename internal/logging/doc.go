// Package logging provides structured logging utilities for the expenses MCP server.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithComponent(slog.Default(), "kvstore")
//	logger.Warn("read failed",
//	    logging.Collection("clients"),
//	    logging.Err(err))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("expense recorded",
//	    logging.UserHash(userID))
//
// # Security Considerations
//
//   - User identifiers (oid/sub claims) are hashed before logging
//   - Tokens are never logged directly
package logging
