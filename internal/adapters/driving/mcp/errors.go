// Package mcp provides an MCP (Model Context Protocol) server adapter for umlgen.
// It lets AI assistants generate diagrams, query the reference index and
// read the artifacts of past runs.
package mcp

import "errors"

// ErrMissingGenerationService is returned when the generation service is not provided.
var ErrMissingGenerationService = errors.New("mcp: generation service is required")
