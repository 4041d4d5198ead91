// Package mcp exposes the governance pipeline as MCP tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp) and
// registers validate_api_change, which validates one pair of file versions, and
// validate_git_changes, which validates every changed file between two revisions.
package mcp
