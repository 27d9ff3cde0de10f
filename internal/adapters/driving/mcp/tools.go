package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// GenerateInput is the input schema for the generate_diagrams tool.
type GenerateInput struct {
	Scenario  string `json:"scenario" jsonschema:"the software scenario to model"`
	Expertise string `json:"expertise,omitempty" jsonschema:"optional domain notes to guide the diagrams"`
	Mode      string `json:"mode,omitempty" jsonschema:"single or two-stage (default from settings)"`
}

// GenerateOutput is the output schema for the generate_diagrams tool.
type GenerateOutput struct {
	RequestID       string          `json:"request_id"`
	Status          string          `json:"status"`
	ExtractionEmpty bool            `json:"extraction_empty"`
	Diagrams        []DiagramOutput `json:"diagrams"`
	Error           string          `json:"error,omitempty"`
	ErrorKind       string          `json:"error_kind,omitempty"`
}

// DiagramOutput reports one diagram of a run.
type DiagramOutput struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Source   string `json:"source_uri"`
	Image    string `json:"image_uri,omitempty"`
	Error    string `json:"error,omitempty"`
}

// QueryInput is the input schema for the query_context tool.
type QueryInput struct {
	Query string `json:"query" jsonschema:"text to find related reference passages for"`
	K     int    `json:"k,omitempty" jsonschema:"number of passages to return (default from settings)"`
}

// QueryOutput is the output schema for the query_context tool.
type QueryOutput struct {
	Passages []PassageOutput `json:"passages"`
	Count    int             `json:"count"`
}

// PassageOutput represents a single retrieved passage.
type PassageOutput struct {
	Source     string  `json:"source"`
	Position   int     `json:"position"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "generate_diagrams",
		Description: "Generate PlantUML diagrams for a software scenario and render them",
	}, s.handleGenerate)

	if s.ports.Index != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "query_context",
			Description: "Retrieve reference passages related to a query",
		}, s.handleQuery)
	}
}

// handleGenerate runs the pipeline synchronously.
// Once a request ID exists the run is reported even when it failed, so the
// caller can still read its artifacts.
func (s *Server) handleGenerate(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerateInput,
) (*mcp.CallToolResult, GenerateOutput, error) {
	req := domain.ScenarioRequest{
		Scenario:  input.Scenario,
		Expertise: input.Expertise,
		Mode:      domain.PipelineMode(input.Mode),
	}

	result, err := s.ports.Generation.Generate(ctx, req, nil)
	if result == nil {
		return nil, GenerateOutput{}, err
	}

	output := GenerateOutput{
		RequestID:       result.RequestID,
		Status:          string(result.Status),
		ExtractionEmpty: result.ExtractionEmpty,
		Diagrams:        make([]DiagramOutput, len(result.Diagrams)),
		Error:           result.Error,
		ErrorKind:       result.ErrorKind,
	}

	for i := range result.Diagrams {
		d := result.Diagrams[i]
		output.Diagrams[i] = DiagramOutput{
			Name:     d.Name,
			Title:    d.Title,
			Status:   string(d.Status),
			Attempts: d.Attempts,
			Source:   artifactURI(result.RequestID, d.SourceArtifact),
			Error:    d.Error,
		}
		if d.ImageArtifact != "" {
			output.Diagrams[i].Image = artifactURI(result.RequestID, d.ImageArtifact)
		}
	}

	return nil, output, nil
}

// handleQuery handles the query_context tool invocation.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	results, err := s.ports.Index.Query(ctx, input.Query, input.K)
	if err != nil {
		return nil, QueryOutput{}, err
	}

	output := QueryOutput{
		Passages: make([]PassageOutput, len(results)),
		Count:    len(results),
	}

	for i := range results {
		output.Passages[i] = PassageOutput{
			Source:     results[i].Passage.Source,
			Position:   results[i].Passage.Position,
			Similarity: results[i].Similarity,
			Content:    results[i].Passage.Content,
		}
	}

	return nil, output, nil
}
