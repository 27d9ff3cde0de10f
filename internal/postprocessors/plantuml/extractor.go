// Package plantuml extracts named PlantUML blocks from LLM responses.
//
// A block runs from a line starting with @startuml to the next line starting
// with @enduml. The line right after @startuml must be a label comment:
//
//	@startuml
//	' === Class Diagram ===
//	class Book
//	@enduml
//
// Blocks without a label are dropped because a diagram must be named to be
// addressable. Extraction is pure: the same input always yields the same units.
package plantuml

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// Markers delimiting a PlantUML block.
const (
	StartMarker = "@startuml"
	EndMarker   = "@enduml"
)

var (
	labelPattern = regexp.MustCompile(`^'\s*===\s*(.*?)\s*===\s*$`)
	unsafeChars  = regexp.MustCompile(`[^a-z0-9_]+`)
	underscores  = regexp.MustCompile(`_+`)
	fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*[ \\t]*\\n(.*?)```")
)

// Extract returns the labelled diagram units in rawText, in source order.
// Colliding names get the smallest free _N suffix, starting at _2.
func Extract(rawText string) []domain.DiagramUnit {
	lines := strings.Split(strings.ReplaceAll(rawText, "\r\n", "\n"), "\n")

	var units []domain.DiagramUnit
	taken := make(map[string]bool)

	for i := 0; i < len(lines); i++ {
		start := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(start, StartMarker) {
			continue
		}

		end := -1
		for j := i + 1; j < len(lines); j++ {
			if strings.HasPrefix(strings.TrimSpace(lines[j]), EndMarker) {
				end = j
				break
			}
		}
		if end < 0 {
			logger.Debug("plantuml: unterminated block at line %d dropped", i+1)
			break
		}

		unit, ok := buildUnit(start, lines[i+1:end], strings.TrimSpace(lines[end]))
		if !ok {
			logger.Debug("plantuml: unlabelled block at line %d dropped", i+1)
			i = end
			continue
		}
		i = end

		unit.Name = uniqueName(unit.Name, taken)
		taken[unit.Name] = true
		units = append(units, unit)
	}

	return units
}

// uniqueName returns base, or base_N with the smallest N >= 2 not yet taken.
// A later label may itself normalize to a suffixed name, so every final
// name is checked.
func uniqueName(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	n := 2
	for taken[base+"_"+strconv.Itoa(n)] {
		n++
	}
	return base + "_" + strconv.Itoa(n)
}

// buildUnit turns the lines of one block into a unit, removing the label line.
func buildUnit(start string, body []string, end string) (domain.DiagramUnit, bool) {
	if len(body) == 0 {
		return domain.DiagramUnit{}, false
	}
	label, ok := ParseLabel(body[0])
	if !ok {
		return domain.DiagramUnit{}, false
	}
	name := NormalizeName(label)
	if name == "" {
		return domain.DiagramUnit{}, false
	}

	var b strings.Builder
	b.WriteString(start)
	b.WriteByte('\n')
	for _, line := range body[1:] {
		b.WriteString(strings.TrimRight(line, " \t"))
		b.WriteByte('\n')
	}
	b.WriteString(end)

	return domain.DiagramUnit{Name: name, Label: label, Source: b.String()}, true
}

// ParseLabel reads a label line of the form "' === Label ===".
func ParseLabel(line string) (string, bool) {
	m := labelPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// NormalizeName derives a file-safe identifier from a label.
// The label is trimmed and lowercased, spaces and hyphens become
// underscores, other characters outside [a-z0-9_] are removed, and runs
// of underscores collapse.
func NormalizeName(label string) string {
	name := strings.ToLower(strings.TrimSpace(label))
	name = strings.NewReplacer(" ", "_", "-", "_", "\t", "_").Replace(name)
	name = unsafeChars.ReplaceAllString(name, "")
	name = underscores.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// ExtractSource pulls a single PlantUML block out of a free-form reply,
// as returned by a repair prompt. Fenced code is unwrapped first. Any label
// line is dropped so the result matches what Extract produces.
// Returns false when the reply holds no complete block.
func ExtractSource(reply string) (string, bool) {
	text := strings.ReplaceAll(reply, "\r\n", "\n")
	if m := fencePattern.FindStringSubmatch(text); m != nil && strings.Contains(m[1], StartMarker) {
		text = m[1]
	}

	lines := strings.Split(text, "\n")
	startIdx, endIdx := -1, -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if startIdx < 0 && strings.HasPrefix(trimmed, StartMarker) {
			startIdx = i
			continue
		}
		if startIdx >= 0 && strings.HasPrefix(trimmed, EndMarker) {
			endIdx = i
			break
		}
	}
	if startIdx < 0 || endIdx < 0 {
		return "", false
	}

	body := lines[startIdx+1 : endIdx]
	if len(body) > 0 {
		if _, ok := ParseLabel(body[0]); ok {
			body = body[1:]
		}
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(lines[startIdx]))
	b.WriteByte('\n')
	for _, line := range body {
		b.WriteString(strings.TrimRight(line, " \t"))
		b.WriteByte('\n')
	}
	b.WriteString(strings.TrimSpace(lines[endIdx]))
	return b.String(), true
}
