// Package skill provides the Skill tool: named instruction packages loaded
// from markdown on demand, injected into the conversation as tool results so
// the system prompt prefix stays cacheable.
//
// A skill lives at <dir>/<name>/SKILL.md with a YAML-style frontmatter block
// carrying name: and description:, followed by the instruction body.
package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	kata "github.com/edenmoss/kata"
)

// Skill is one parsed instruction package.
type Skill struct {
	Name        string
	Description string
	Body        string
}

// Loader scans a skills directory once and caches the parsed packages.
type Loader struct {
	skills map[string]Skill
}

// NewLoader scans dir for <name>/SKILL.md entries. Files without a valid
// frontmatter block are skipped.
func NewLoader(dir string) (*Loader, error) {
	l := &Loader{skills: map[string]Skill{}}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan skills dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name(), "SKILL.md"))
		if err != nil {
			continue
		}
		s, ok := parseSkill(raw)
		if !ok {
			continue
		}
		if s.Name == "" {
			s.Name = e.Name()
		}
		l.skills[s.Name] = s
	}
	return l, nil
}

// parseSkill splits the frontmatter block from the body and walks the body's
// markdown AST to confirm it parses. Returns ok=false when no frontmatter
// delimiters are present.
func parseSkill(raw []byte) (Skill, bool) {
	content := string(raw)
	if !strings.HasPrefix(content, "---\n") {
		return Skill{}, false
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Skill{}, false
	}
	front := rest[:end]
	body := strings.TrimPrefix(rest[end+len("\n---"):], "\n")

	var s Skill
	for _, line := range strings.Split(front, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "name":
			s.Name = strings.TrimSpace(value)
		case "description":
			s.Description = strings.TrimSpace(value)
		}
	}
	if s.Description == "" {
		return Skill{}, false
	}
	s.Body = strings.TrimSpace(renderBody([]byte(body)))
	return s, true
}

// renderBody walks the markdown AST and re-extracts the raw text of each
// top-level block, dropping anything goldmark cannot parse.
func renderBody(body []byte) string {
	md := goldmark.New()
	reader := text.NewReader(body)
	doc := md.Parser().Parse(reader)

	var b strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(body))
		}
		if lines.Len() > 0 {
			b.WriteString("\n")
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// Get returns the named skill.
func (l *Loader) Get(name string) (Skill, bool) {
	s, ok := l.skills[name]
	return s, ok
}

// List returns the available skill names, sorted.
func (l *Loader) List() []string {
	names := make([]string, 0, len(l.skills))
	for n := range l.skills {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Tool exposes the Loader as the Skill tool.
type Tool struct {
	loader *Loader
}

// New wraps loader as a tool.
func New(loader *Loader) *Tool {
	return &Tool{loader: loader}
}

func (t *Tool) Definitions() []kata.ToolDefinition {
	desc := "Load a skill to gain specialized knowledge."
	if names := t.loader.List(); len(names) > 0 {
		desc += " Available: " + strings.Join(names, ", ")
	}
	return []kata.ToolDefinition{{
		Name:        "Skill",
		Description: desc,
		Parameters:  json.RawMessage(`{"type":"object","properties":{"skill":{"type":"string","description":"Name of the skill to load"}},"required":["skill"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (kata.ToolResult, error) {
	var params struct {
		Skill string `json:"skill"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return kata.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	s, ok := t.loader.Get(params.Skill)
	if !ok {
		return kata.ToolResult{Error: fmt.Sprintf("skill %q not found (available: %s)", params.Skill, strings.Join(t.loader.List(), ", "))}, nil
	}
	content := fmt.Sprintf("<skill-loaded name=%q>\n%s\n\n%s\n</skill-loaded>", s.Name, s.Description, s.Body)
	return kata.ToolResult{Content: content}, nil
}
