package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	return t
}

// Write renders the run summary and insights as text tables.
func Write(w io.Writer, summary scraper.Summary, insights Insights) error {
	run := newTable("Run summary")
	run.AppendHeader(table.Row{"Metric", "Value"})
	run.AppendRows([]table.Row{
		{"Run ID", summary.RunID},
		{"Targets enqueued", summary.TargetsEnqueued},
		{"Targets fetched", summary.TargetsFetched},
		{"Targets failed", summary.TargetsFailed},
		{"Targets skipped", summary.TargetsSkipped},
		{"Fetch attempts", summary.FetchAttempts},
		{"Records extracted", summary.RecordsExtracted},
		{"Records added", summary.RecordsAdded},
		{"Duration", summary.Duration.Round(time.Millisecond).String()},
	})
	if _, err := fmt.Fprintln(w, run.Render()); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if insights.Rated > 0 {
		if _, err := fmt.Fprintf(w, "Average rating: %.2f (%d of %d records rated)\n", insights.AverageRating, insights.Rated, insights.Records); err != nil {
			return fmt.Errorf("write ratings: %w", err)
		}
		ratings := newTable("Ratings")
		ratings.AppendHeader(table.Row{"Rating", "Records", "Share"})
		for _, b := range insights.Ratings {
			share := float64(b.Count) / float64(insights.Rated) * 100
			ratings.AppendRow(table.Row{
				strconv.FormatFloat(b.Rating, 'f', -1, 64),
				b.Count,
				fmt.Sprintf("%.1f%%", share),
			})
		}
		if _, err := fmt.Fprintln(w, ratings.Render()); err != nil {
			return fmt.Errorf("write ratings: %w", err)
		}
	}

	if err := writeWords(w, "Top words", insights.TopWords); err != nil {
		return err
	}

	if insights.Scored > 0 {
		sentiments := newTable("Sentiment")
		sentiments.AppendHeader(table.Row{"Sentiment", "Records", "Share"})
		for _, c := range insights.Sentiments {
			share := float64(c.Count) / float64(insights.Scored) * 100
			sentiments.AppendRow(table.Row{c.Label, c.Count, fmt.Sprintf("%.1f%%", share)})
		}
		if _, err := fmt.Fprintln(w, sentiments.Render()); err != nil {
			return fmt.Errorf("write sentiment: %w", err)
		}
		categories := newTable("Categories")
		categories.AppendHeader(table.Row{"Category", "Records"})
		for _, c := range insights.Categories {
			categories.AppendRow(table.Row{c.Label, c.Count})
		}
		if _, err := fmt.Fprintln(w, categories.Render()); err != nil {
			return fmt.Errorf("write sentiment: %w", err)
		}
		if err := writeWords(w, "Positive words", insights.TopPositiveWords); err != nil {
			return err
		}
		if err := writeWords(w, "Negative words", insights.TopNegativeWords); err != nil {
			return err
		}
	}

	if len(insights.Recommendations) > 0 {
		if _, err := fmt.Fprintln(w, "Recommendations:"); err != nil {
			return fmt.Errorf("write recommendations: %w", err)
		}
		for _, rec := range insights.Recommendations {
			if _, err := fmt.Fprintf(w, "  - %s\n", rec); err != nil {
				return fmt.Errorf("write recommendations: %w", err)
			}
		}
	}
	return nil
}

func writeWords(w io.Writer, title string, words []WordCount) error {
	if len(words) == 0 {
		return nil
	}
	t := newTable(title)
	t.AppendHeader(table.Row{"#", "Word", "Count"})
	for i, wc := range words {
		t.AppendRow(table.Row{i + 1, wc.Word, wc.Count})
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return fmt.Errorf("write %s: %w", strings.ToLower(title), err)
	}
	return nil
}
