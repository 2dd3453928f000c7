package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/odyssey-erp/odyssey-inventory/internal/inventory/report"
)

type reportBuilder interface {
	Build(ctx context.Context, rng report.Range) (report.Report, error)
}

type reportExporter interface {
	Export(ctx context.Context, w io.Writer, rep report.Report, format report.Format) error
}

// ReportCLI prints the warehouse report.
type ReportCLI struct {
	builder  reportBuilder
	exporter reportExporter
}

// NewReportCLI constructs the report helper.
func NewReportCLI(builder reportBuilder, exporter reportExporter) *ReportCLI {
	return &ReportCLI{builder: builder, exporter: exporter}
}

// ReportOptions carries the flags of `odyssey report`. Dates are YYYY-MM-DD.
type ReportOptions struct {
	From   string
	To     string
	Format string
	Stdout io.Writer
	Stderr io.Writer
}

// ReportCommand writes the report to Stdout and returns the exit code.
func (c *ReportCLI) ReportCommand(ctx context.Context, opts ReportOptions) int {
	format, err := report.ParseFormat(opts.Format)
	if err != nil {
		fmt.Fprintln(opts.Stderr, err)
		return 2
	}
	from, err := report.ParseDate(opts.From)
	if err != nil {
		fmt.Fprintln(opts.Stderr, err)
		return 2
	}
	to, err := report.ParseDate(opts.To)
	if err != nil {
		fmt.Fprintln(opts.Stderr, err)
		return 2
	}
	rep, err := c.builder.Build(ctx, report.Range{From: from, To: to})
	if err != nil {
		fmt.Fprintf(opts.Stderr, "build report: %v\n", err)
		return 1
	}
	if err := c.exporter.Export(ctx, opts.Stdout, rep, format); err != nil {
		fmt.Fprintf(opts.Stderr, "export report: %v\n", err)
		return 1
	}
	return 0
}
