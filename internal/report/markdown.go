// Package report renders dashboard views as Markdown, HTML or styled
// terminal text.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/clientscope-cli/internal/dashboard"
	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
	"github.com/KaramelBytes/clientscope-cli/internal/explain"
	"github.com/KaramelBytes/clientscope-cli/internal/stats"
)

// GaugeReference is the repayment score (percent) below which the gauge turns red.
const GaugeReference = 35.0

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

func num(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", v)
}

func value(v any) string {
	switch x := v.(type) {
	case float64:
		return stats.FormatValue(x)
	case string:
		return safeVal(x)
	default:
		return fmt.Sprint(x)
	}
}

// Overview renders dataset metadata.
func Overview(ov dashboard.Overview) string {
	var b strings.Builder
	b.WriteString("## Dataset\n\n")
	b.WriteString(fmt.Sprintf("- File: %s\n", ov.Name))
	b.WriteString(fmt.Sprintf("- Clients: %d (keys %d to %d)\n", ov.Rows, ov.MinKey, ov.MaxKey))
	if ov.Dropped > 0 {
		b.WriteString(fmt.Sprintf("- Dropped for missing values: %d\n", ov.Dropped))
	}
	b.WriteString(fmt.Sprintf("- Numeric attributes: %d\n", len(ov.Numeric)))
	b.WriteString(fmt.Sprintf("- Categorical attributes: %d\n", len(ov.Categorical)))
	return b.String()
}

// Record renders a client's attributes as a two-column table.
func Record(rec dataset.FeatureRecord) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("## Client %s (key %d)\n\n", rec.ExternalID, rec.Key))
	b.WriteString("| Attribute | Value |\n|---|---|\n")
	for _, f := range rec.Fields {
		b.WriteString(fmt.Sprintf("| %s | %s |\n", safeVal(f.Name), value(f.Value)))
	}
	return b.String()
}

// Comparison renders one column's population with the client marked.
func Comparison(c stats.Comparison) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("## %s\n\n", safeVal(c.Column)))
	b.WriteString(fmt.Sprintf("Client value: **%s**\n\n", value(c.ClientValue)))
	if c.Categorical {
		b.WriteString("| Value | Count |\n|---|---|\n")
		client := value(c.ClientValue)
		for _, cc := range c.Categories.Counts {
			mark := ""
			if cc.Value == client {
				mark = " ◀"
			}
			b.WriteString(fmt.Sprintf("| %s%s | %d |\n", safeVal(cc.Value), mark, cc.Count))
		}
		return b.String()
	}
	s := c.Numeric
	b.WriteString(fmt.Sprintf("- count %d, mean %s, std %s, min %s, median %s, max %s\n",
		s.Count, num(s.Mean), num(s.Std), num(s.Min), num(s.Median), num(s.Max)))
	if c.ZScore != nil {
		b.WriteString(fmt.Sprintf("- z-score %.2f\n", *c.ZScore))
	} else {
		b.WriteString("- z-score undefined\n")
	}
	b.WriteString("\n")
	b.WriteString(Histogram(s.Histogram, c.ClientBin))
	return b.String()
}

// Histogram draws bins as text bars; the client's bin is marked.
func Histogram(h stats.Histogram, clientBin int) string {
	if len(h.Counts) == 0 {
		return ""
	}
	peak := 0
	for _, c := range h.Counts {
		if c > peak {
			peak = c
		}
	}
	var b strings.Builder
	b.WriteString("```\n")
	for i, c := range h.Counts {
		width := 0
		if peak > 0 {
			width = int(math.Round(float64(c) * 30 / float64(peak)))
		}
		mark := ""
		if i == clientBin {
			mark = " ◀ client"
		}
		b.WriteString(fmt.Sprintf("%12s | %-30s %d%s\n", num(h.Edges[i]), strings.Repeat("█", width), c, mark))
	}
	b.WriteString("```\n")
	return b.String()
}

// Bivariate summarizes a two-column view.
func Bivariate(v stats.BivariateView) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("## %s vs %s\n\n", safeVal(v.X), safeVal(v.Y)))
	b.WriteString(fmt.Sprintf("- points: %d\n", len(v.Points)))
	b.WriteString(fmt.Sprintf("- client: (%s, %s)\n", num(v.Client.X), num(v.Client.Y)))
	b.WriteString(fmt.Sprintf("- Pearson r: %s\n", num(v.Correlation)))
	return b.String()
}

// Extremes renders the most atypical attributes on each side.
func Extremes(ex stats.Extremes) string {
	var b strings.Builder
	b.WriteString("## Most atypical attributes\n\n")
	section := func(title string, es []stats.Extreme) {
		b.WriteString(fmt.Sprintf("### %s\n\n", title))
		if len(es) == 0 {
			b.WriteString("_none_\n\n")
			return
		}
		b.WriteString("| Attribute | Value | z-score |\n|---|---|---|\n")
		for _, e := range es {
			b.WriteString(fmt.Sprintf("| %s | %s | %.2f |\n", safeVal(e.Column), num(e.Value), e.ZScore))
		}
		b.WriteString("\n")
	}
	section("Lowest", ex.Low)
	section("Highest", ex.High)
	return b.String()
}

// Gauge draws the repayment score on a 0-100 bar with the reference mark.
func Gauge(scorePct float64) string {
	const width = 40
	filled := int(math.Round(scorePct / 100 * width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	ref := int(math.Round(GaugeReference / 100 * width))
	bar := []rune(strings.Repeat("█", filled) + strings.Repeat("░", width-filled))
	bar[min(ref, width-1)] = '|'
	delta := scorePct - GaugeReference
	return fmt.Sprintf("[%s] %.2f%% (%+.2f vs %.0f%%)", string(bar), scorePct, delta, GaugeReference)
}

// Prediction renders a scoring result.
func Prediction(p dashboard.Prediction) string {
	var b strings.Builder
	b.WriteString("## Scoring\n\n")
	b.WriteString(fmt.Sprintf("- Decision: **%s**\n", strings.ToUpper(string(p.Decision))))
	b.WriteString(fmt.Sprintf("- Repayment score: %.2f %%\n", p.ProbabilityOnTime*100))
	b.WriteString(fmt.Sprintf("- Default risk: %.2f %%\n\n", p.ProbabilityDefault*100))
	b.WriteString("```\n" + Gauge(p.ProbabilityOnTime*100) + "\n```\n")
	return b.String()
}

// Local renders a waterfall of the largest contributions.
func Local(l explain.Local) string {
	var b strings.Builder
	b.WriteString("## Why this score\n\n")
	b.WriteString(fmt.Sprintf("Base value %.4f → prediction %.4f\n\n", l.BaseValue, l.Prediction))
	b.WriteString("| Attribute | Value | Contribution | Running |\n|---|---|---|---|\n")
	running := l.BaseValue
	for _, c := range l.Top {
		running += c.Contribution
		b.WriteString(fmt.Sprintf("| %s | %s | %+.4f | %.4f |\n", safeVal(c.Feature), num(c.Value), c.Contribution, running))
	}
	if l.OtherCount > 0 {
		running += l.Other
		b.WriteString(fmt.Sprintf("| %s (%d) | | %+.4f | %.4f |\n", explain.OtherFeatures, l.OtherCount, l.Other, running))
	}
	return b.String()
}

// Importance renders global feature importance.
func Importance(imp []explain.Importance) string {
	var b strings.Builder
	b.WriteString("## Global feature importance\n\n")
	b.WriteString("| # | Attribute | Mean abs contribution |\n|---|---|---|\n")
	for i, f := range imp {
		b.WriteString(fmt.Sprintf("| %d | %s | %.4f |\n", i+1, safeVal(f.Feature), f.MeanAbs))
	}
	return b.String()
}
