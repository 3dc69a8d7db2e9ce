package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// StatusRenderer renders integrity reports, store status and migration state
type StatusRenderer struct {
	out io.Writer
}

// NewStatusRenderer creates a new status renderer
func NewStatusRenderer(out io.Writer) *StatusRenderer {
	return &StatusRenderer{out: out}
}

// RenderReport renders an integrity report
func (r *StatusRenderer) RenderReport(report *domain.IntegrityReport) error {
	if report.IsValid {
		fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("%d contracts checked, no errors", report.ContractCount)))
	} else {
		fmt.Fprintln(r.out, FormatError(fmt.Sprintf("%d contracts checked, %d errors", report.ContractCount, len(report.Errors))))
	}
	for _, e := range report.Errors {
		fmt.Fprintf(r.out, "  %s %s\n", errStyle.Sprint("✗"), e)
	}
	for _, w := range report.Warnings {
		fmt.Fprintln(r.out, "  "+FormatWarning(w))
	}
	return nil
}

// RenderStatus renders health and metrics of the active store
func (r *StatusRenderer) RenderStatus(status *usecase.StoreStatusResult) error {
	health := okStyle.Sprint("healthy")
	if !status.Healthy {
		health = errStyle.Sprint("unavailable")
	}
	headerStyle.Fprintf(r.out, "Backend: %s\n", status.Backend)
	fmt.Fprintf(r.out, "Health:  %s\n\n", health)

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Read latency", fmt.Sprintf("%.3f ms", status.Metrics.ReadLatency)})
	t.AppendRow(table.Row{"Write latency", fmt.Sprintf("%.3f ms", status.Metrics.WriteLatency)})
	t.AppendRow(table.Row{"Query latency", fmt.Sprintf("%.3f ms", status.Metrics.QueryLatency)})
	t.AppendRow(table.Row{"Error rate", fmt.Sprintf("%.2f%%", status.Metrics.ErrorRate*100)})
	if status.Metrics.CacheHitRate != nil {
		t.AppendRow(table.Row{"Cache hit rate", fmt.Sprintf("%.2f%%", *status.Metrics.CacheHitRate*100)})
	}
	fmt.Fprintln(r.out, t.Render())

	if status.Migration != nil {
		fmt.Fprintln(r.out)
		return r.RenderMigration(status.Migration)
	}
	return nil
}

// RenderMigration renders the state of a migration
func (r *StatusRenderer) RenderMigration(view *usecase.MigrationView) error {
	headerStyle.Fprintf(r.out, "Migration: %s\n", view.Backend)
	fmt.Fprintf(r.out, "  State:    %s\n", Title(string(view.State)))

	p := view.Progress
	fmt.Fprintf(r.out, "  Phase:    %s\n", Title(string(p.Phase)))
	if p.ID != "" {
		fmt.Fprintf(r.out, "  Run:      %s\n", p.ID)
	}
	if p.Total > 0 {
		fmt.Fprintf(r.out, "  Progress: %d/%d (%.0f%%)\n", p.Processed, p.Total, p.Percent())
	}
	if p.StartedAt != 0 {
		fmt.Fprintf(r.out, "  Started:  %s\n", FormatTimestamp(p.StartedAt))
	}
	if p.FinishedAt != 0 {
		fmt.Fprintf(r.out, "  Finished: %s\n", FormatTimestamp(p.FinishedAt))
	}
	for _, e := range p.Errors {
		fmt.Fprintf(r.out, "  %s %s\n", errStyle.Sprint("✗"), e)
	}

	if len(view.Warnings) > 0 {
		fmt.Fprintln(r.out, "\n"+FormatWarning(fmt.Sprintf("%d write validation warnings", len(view.Warnings))))
		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Key", "Field", "Written", "Read Back"})
		for _, w := range view.Warnings {
			t.AppendRow(table.Row{w.Key, w.Field, w.Written, w.ReadBack})
		}
		fmt.Fprintln(r.out, t.Render())
	}
	return nil
}
