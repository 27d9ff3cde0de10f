package domain

import (
	"path"
	"strings"
	"time"
)

// Artifact names persisted for every run.
const (
	ArtifactScenario         = "scenario.txt"
	ArtifactExpertise        = "expertise.txt"
	ArtifactRetrievedContext = "retrieved_context.txt"
	ArtifactStage1Response   = "stage1_response.txt"
	ArtifactLLMResponse      = "llm_response.txt"
)

// SourceExt is the extension of diagram source artifacts.
const SourceExt = ".puml"

// DefaultImageFormat is used when a renderer does not name its format.
const DefaultImageFormat = "png"

// ImageFormats maps the image formats a renderer may produce to their MIME
// types. The format doubles as the image artifact's extension.
var ImageFormats = map[string]string{
	"png":  "image/png",
	"svg":  "image/svg+xml",
	"jpeg": "image/jpeg",
	"pdf":  "application/pdf",
}

// ArtifactKind classifies a stored artifact.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactKindText   ArtifactKind = "text"
	ArtifactKindSource ArtifactKind = "plantuml"
	ArtifactKindImage  ArtifactKind = "image"
)

// ArtifactInfo describes one stored artifact.
type ArtifactInfo struct {
	Name       string       `json:"name"`
	Kind       ArtifactKind `json:"kind"`
	Size       int64        `json:"size"`
	Location   string       `json:"location"`
	ModifiedAt time.Time    `json:"modified_at"`
}

// SourceArtifactName returns the .puml artifact name for a diagram.
func SourceArtifactName(diagram string) string {
	return diagram + SourceExt
}

// ImageArtifactName returns the image artifact name for a diagram rendered
// in format.
func ImageArtifactName(diagram, format string) string {
	format = strings.ToLower(format)
	if format == "" {
		format = DefaultImageFormat
	}
	return diagram + "." + format
}

// KindOf classifies an artifact by its extension.
func KindOf(name string) ArtifactKind {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case ext == SourceExt:
		return ArtifactKindSource
	case ImageFormats[strings.TrimPrefix(ext, ".")] != "":
		return ArtifactKindImage
	default:
		return ArtifactKindText
	}
}

// ContentType returns the MIME type an artifact is served with.
func ContentType(name string) string {
	if KindOf(name) == ArtifactKindImage {
		return ImageFormats[strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")]
	}
	return "text/plain; charset=utf-8"
}

// ValidArtifactName reports whether name is a plain file name safe to store.
func ValidArtifactName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}
