package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/KaramelBytes/clientscope-cli/internal/dashboard"
	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
	"github.com/KaramelBytes/clientscope-cli/internal/explain"
	"github.com/KaramelBytes/clientscope-cli/internal/scoring"
	"github.com/KaramelBytes/clientscope-cli/internal/session"
	"github.com/KaramelBytes/clientscope-cli/internal/stats"
)

// ClientReport gathers every view of one client. Scoring and attribution
// failures are kept as messages so the rest of the report still renders.
type ClientReport struct {
	GeneratedAt    time.Time
	Overview       dashboard.Overview
	Record         dataset.FeatureRecord
	Extremes       stats.Extremes
	Prediction     *dashboard.Prediction
	PredictionErr  string
	Explanation    *explain.Local
	ExplanationErr string
	Importance     []explain.Importance
}

// BuildOptions selects the optional sections.
type BuildOptions struct {
	Score      bool
	Explain    bool
	ExtremesK  int
	WaterfallK int
	TopN       int
}

// Build collects a report for the session's selected client. Dataset and
// selection errors abort; scoring and attribution errors are recorded.
func Build(ctx context.Context, d *dashboard.Dashboard, s *session.Session, opt BuildOptions) (*ClientReport, error) {
	ov, err := d.Overview()
	if err != nil {
		return nil, err
	}
	rec, err := d.Client(s)
	if err != nil {
		return nil, err
	}
	ex, err := d.Extremes(s, opt.ExtremesK)
	if err != nil {
		return nil, err
	}
	r := &ClientReport{GeneratedAt: time.Now(), Overview: ov, Record: rec, Extremes: ex}
	if opt.Score {
		if p, err := d.Predict(ctx, s); err != nil {
			r.PredictionErr = err.Error()
		} else {
			r.Prediction = &p
		}
	}
	if opt.Explain {
		if l, err := d.Explain(ctx, s, opt.WaterfallK); err != nil {
			r.ExplanationErr = err.Error()
		} else {
			r.Explanation = &l
		}
		if imp, err := d.Importance(ctx, opt.TopN); err == nil {
			r.Importance = imp
		}
	}
	return r, nil
}

// Markdown renders the full report.
func (r *ClientReport) Markdown() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Client report: %s\n\n", r.Record.ExternalID))
	b.WriteString(fmt.Sprintf("_Generated %s_\n\n", r.GeneratedAt.Format(time.RFC3339)))
	b.WriteString(Overview(r.Overview))
	b.WriteString("\n")
	switch {
	case r.Prediction != nil:
		b.WriteString(Prediction(*r.Prediction))
	case r.PredictionErr != "":
		b.WriteString("## Scoring\n\n> " + safeVal(r.PredictionErr) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(Extremes(r.Extremes))
	switch {
	case r.Explanation != nil:
		b.WriteString(Local(*r.Explanation))
		b.WriteString("\n")
	case r.ExplanationErr != "":
		b.WriteString("## Why this score\n\n> " + safeVal(r.ExplanationErr) + "\n\n")
	}
	if len(r.Importance) > 0 {
		b.WriteString(Importance(r.Importance))
		b.WriteString("\n")
	}
	b.WriteString(Record(r.Record))
	return b.String()
}

// HTML converts Markdown into a standalone HTML page.
func HTML(md, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage | html.HrefTargetBlank,
	})
	return markdown.ToHTML([]byte(md), p, renderer)
}

// Terminal renders Markdown for a terminal. An empty style picks one from
// the terminal background; "notty" yields plain text.
func Terminal(md, style string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("terminal renderer: %w", err)
	}
	return r.Render(md)
}

var (
	approvedStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#2E7D32"))
	rejectedStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#C62828"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9E9E9E"))
)

// DecisionBadge styles a decision for terminal output.
func DecisionBadge(d scoring.Decision) string {
	label := strings.ToUpper(string(d))
	if d == scoring.Approved {
		return approvedStyle.Render(label)
	}
	return rejectedStyle.Render(label)
}

// Muted styles secondary terminal text.
func Muted(s string) string { return mutedStyle.Render(s) }
