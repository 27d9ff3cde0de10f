package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for umlgen resources.
	uriScheme = "umlgen://"

	// recentRuns is how many runs the runs resource lists.
	recentRuns = 20
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing recent runs.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "runs",
		Name:        "runs",
		Description: "Recent diagram generation runs",
		MIMEType:    "application/json",
	}, s.handleRunsResource)

	// Template for one run and its artifacts.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "runs/{requestId}",
		Name:        "run",
		Description: "Summary and artifact listing of a run",
		MIMEType:    "application/json",
	}, s.handleRunResource)

	// Template for artifact content.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "runs/{requestId}/artifacts/{name}",
		Name:        "run-artifact",
		Description: "Content of one run artifact (text, PlantUML source or PNG image)",
	}, s.handleArtifactResource)
}

// handleRunsResource returns the most recent runs.
func (s *Server) handleRunsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Runs == nil {
		return jsonResult(req.Params.URI, []byte("[]")), nil
	}

	runs, err := s.ports.Runs.List(ctx, recentRuns)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	type runInfo struct {
		RequestID string `json:"request_id"`
		Status    string `json:"status"`
		Mode      string `json:"mode"`
		URI       string `json:"uri"`
	}

	infos := make([]runInfo, len(runs))
	for i := range runs {
		infos[i] = runInfo{
			RequestID: runs[i].RequestID,
			Status:    string(runs[i].Status),
			Mode:      string(runs[i].Mode),
			URI:       uriScheme + "runs/" + runs[i].RequestID,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling runs: %w", err)
	}
	return jsonResult(req.Params.URI, data), nil
}

// handleRunResource returns a run summary and its artifact listing.
// Runs still in progress have artifacts but no summary yet.
func (s *Server) handleRunResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Runs == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	requestID := extractRequestID(req.Params.URI)
	if requestID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	artifacts, err := s.ports.Runs.Artifacts(ctx, requestID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	type artifactInfo struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
		Size int64  `json:"size"`
		URI  string `json:"uri"`
	}

	view := struct {
		Run       *domain.RunRecord `json:"run,omitempty"`
		Artifacts []artifactInfo    `json:"artifacts"`
	}{
		Artifacts: make([]artifactInfo, len(artifacts)),
	}

	for i, a := range artifacts {
		view.Artifacts[i] = artifactInfo{
			Name: a.Name,
			Kind: string(a.Kind),
			Size: a.Size,
			URI:  artifactURI(requestID, a.Name),
		}
	}

	run, err := s.ports.Runs.Get(ctx, requestID)
	switch {
	case err == nil:
		view.Run = run
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("getting run: %w", err)
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling run: %w", err)
	}
	return jsonResult(req.Params.URI, data), nil
}

// handleArtifactResource returns the content of one artifact.
// Images are returned as blobs, everything else as text.
func (s *Server) handleArtifactResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Runs == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	requestID, name := extractArtifact(req.Params.URI)
	if requestID == "" || !domain.ValidArtifactName(name) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	data, err := s.ports.Runs.Artifact(ctx, requestID, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	contents := &mcp.ResourceContents{URI: req.Params.URI}
	if domain.KindOf(name) == domain.ArtifactKindImage {
		contents.MIMEType = domain.ContentType(name)
		contents.Blob = data
	} else {
		contents.MIMEType = "text/plain"
		contents.Text = string(data)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{contents}}, nil
}

func jsonResult(uri string, data []byte) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}
}

// artifactURI builds the resource URI of an artifact.
func artifactURI(requestID, name string) string {
	return uriScheme + "runs/" + requestID + "/artifacts/" + name
}

// extractRequestID extracts the request ID from a URI like umlgen://runs/{requestId}.
func extractRequestID(uri string) string {
	const prefix = uriScheme + "runs/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}

// extractArtifact extracts the request ID and artifact name from a URI like
// umlgen://runs/{requestId}/artifacts/{name}.
func extractArtifact(uri string) (requestID, name string) {
	const prefix = uriScheme + "runs/"
	const middle = "/artifacts/"

	if !strings.HasPrefix(uri, prefix) {
		return "", ""
	}

	rest := strings.TrimPrefix(uri, prefix)
	requestID, name, ok := strings.Cut(rest, middle)
	if !ok || requestID == "" || strings.Contains(requestID, "/") {
		return "", ""
	}
	return requestID, name
}
