// Package expense_tools provides the MCP tools for recording and listing the
// authenticated user's expenses.
//
// Both tools read the caller's identity from the user_id state published by
// the authentication middleware stage and refuse to run without it.
package expense_tools
