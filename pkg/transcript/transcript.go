// Package transcript renders finalized session turns as JSON and Markdown
// export documents. Exports are write-only snapshots: the session store
// remains the source of truth, and a file once written is never amended.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/session"
)

// DefaultDir is where exports land when no directory is configured.
const DefaultDir = "exports"

const timestampLayout = "20060102_150405"

// Exporter writes transcript files into a directory, creating it on first
// use.
type Exporter struct {
	dir    string
	logger *logx.Logger
}

// New builds an exporter rooted at dir, defaulting to DefaultDir.
func New(dir string) *Exporter {
	if dir == "" {
		dir = DefaultDir
	}
	return &Exporter{
		dir:    dir,
		logger: logx.NewLogger("transcript"),
	}
}

// CitationView is the export shape of one recorded tool call. Successful
// calls carry a count and summary; failed calls carry only the error.
type CitationView struct {
	Tool            string         `json:"tool"`
	Args            map[string]any `json:"args"`
	ResultCount     *int           `json:"result_count,omitempty"`
	ResultSummary   string         `json:"result_summary,omitempty"`
	Error           string         `json:"error,omitempty"`
	CachedFromRound *int           `json:"cached_from_round,omitempty"`
}

type jsonDocument struct {
	ExportedAt string     `json:"exported_at"`
	TotalTurns int        `json:"total_turns"`
	Turns      []jsonTurn `json:"turns"`
}

type jsonTurn struct {
	TurnNumber  int            `json:"turn_number"`
	Timestamp   string         `json:"timestamp"`
	Role        string         `json:"role"`
	Text        string         `json:"text"`
	ToolCalls   []CitationView `json:"tool_calls"`
	Incomplete  bool           `json:"incomplete,omitempty"`
	AbortReason string         `json:"abort_reason,omitempty"`
}

// ExportJSON writes turns as a JSON document and returns the file path. An
// empty filename gets a timestamped default.
func (e *Exporter) ExportJSON(turns []session.Turn, filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("transcript_%s.json", time.Now().Format(timestampLayout))
	}
	path, err := e.ensurePath(filename)
	if err != nil {
		return "", err
	}

	doc := jsonDocument{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		TotalTurns: len(turns),
		Turns:      make([]jsonTurn, 0, len(turns)),
	}
	for i, turn := range turns {
		doc.Turns = append(doc.Turns, jsonTurn{
			TurnNumber:  i + 1,
			Timestamp:   turn.CompletedAt.UTC().Format(time.RFC3339),
			Role:        turn.Role,
			Text:        turn.Text,
			ToolCalls:   citationViews(turn.Citations),
			Incomplete:  turn.Incomplete,
			AbortReason: string(turn.AbortReason),
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}

	e.logger.Info("📝 Exported %d turns to %s", len(turns), path)
	return path, nil
}

// ExportMarkdown writes turns as a Markdown document and returns the file
// path. An empty filename gets a timestamped default.
func (e *Exporter) ExportMarkdown(turns []session.Turn, filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("transcript_%s.md", time.Now().Format(timestampLayout))
	}
	path, err := e.ensurePath(filename)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("# Chat Transcript\n\n")
	fmt.Fprintf(&b, "**Exported:** %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Total Turns:** %d\n\n", len(turns))
	b.WriteString("---\n\n")

	for i, turn := range turns {
		fmt.Fprintf(&b, "## Turn %d: %s\n\n", i+1, strings.ToUpper(turn.Role))
		fmt.Fprintf(&b, "%s\n\n", turn.Text)
		if turn.Incomplete {
			fmt.Fprintf(&b, "_Turn incomplete (%s)._\n\n", turn.AbortReason)
		}

		if len(turn.Citations) > 0 {
			b.WriteString("### Tool Calls\n\n")
			for j, view := range citationViews(turn.Citations) {
				fmt.Fprintf(&b, "**Tool %d:** %s\n\n", j+1, view.Tool)

				args, err := json.MarshalIndent(view.Args, "", "  ")
				if err == nil {
					b.WriteString("**Arguments:**\n```json\n")
					b.Write(args)
					b.WriteString("\n```\n\n")
				}

				if view.ResultCount != nil {
					fmt.Fprintf(&b, "**Results:** %d items\n\n", *view.ResultCount)
				}
				if view.ResultSummary != "" {
					fmt.Fprintf(&b, "**Summary:** %s\n\n", view.ResultSummary)
				}
				if view.CachedFromRound != nil {
					fmt.Fprintf(&b, "**Served from cache** (round %d)\n\n", *view.CachedFromRound)
				}
				if view.Error != "" {
					fmt.Fprintf(&b, "**Error:** %s\n\n", view.Error)
				}
			}
		}
		b.WriteString("---\n\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}

	e.logger.Info("📝 Exported %d turns to %s", len(turns), path)
	return path, nil
}

func (e *Exporter) ensurePath(filename string) (string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory %s: %w", e.dir, err)
	}
	return filepath.Join(e.dir, filename), nil
}

// citationViews converts recorded citations into their export shape.
func citationViews(citations []session.Citation) []CitationView {
	views := make([]CitationView, 0, len(citations))
	for _, c := range citations {
		view := CitationView{
			Tool: c.Request.CapabilityName,
			Args: c.Request.Arguments,
		}
		if view.Args == nil {
			view.Args = map[string]any{}
		}

		if c.Result.Kind == capability.ResultFailure {
			view.Error = c.Result.ResultSummary()
		} else {
			count := c.Result.ResultCount()
			view.ResultCount = &count
			view.ResultSummary = c.Result.ResultSummary()
			if c.Result.Kind == capability.ResultCacheHit {
				round := c.Result.OriginalRound
				view.CachedFromRound = &round
			}
		}
		views = append(views, view)
	}
	return views
}
