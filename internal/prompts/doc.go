// Package prompts provides MCP prompt templates for expense analysis.
package prompts
