// Package resources provides MCP resources describing the expense catalog
// and the caller's session.
//
// expenses://categories is static. user://session is scoped to the
// authenticated user resolved by the middleware chain.
package resources
