package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// ErrUnsupportedFormat indicates an unknown or unavailable format.
var ErrUnsupportedFormat = errors.New("report: unsupported format")

// ParseFormat maps a query value to a Format; empty means JSON.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatXML, FormatCSV, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXML:
		return "application/xml; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json; charset=utf-8"
	}
}

// PDFConverter turns an HTML document into PDF.
type PDFConverter interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Exporter writes reports in the supported formats. PDF needs a converter.
type Exporter struct {
	pdf PDFConverter
}

// NewExporter constructs an Exporter; pdf may be nil.
func NewExporter(pdf PDFConverter) *Exporter {
	return &Exporter{pdf: pdf}
}

// Export writes rep to w.
func (e *Exporter) Export(ctx context.Context, w io.Writer, rep Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatXML:
		if _, err := io.WriteString(w, xml.Header); err != nil {
			return err
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Flush()
	case FormatCSV:
		return WriteCSV(w, rep)
	case FormatPDF:
		if e == nil || e.pdf == nil {
			return fmt.Errorf("%w: pdf rendering not configured", ErrUnsupportedFormat)
		}
		var html bytes.Buffer
		if err := WriteHTML(&html, rep); err != nil {
			return err
		}
		pdf, err := e.pdf.RenderHTML(ctx, html.String())
		if err != nil {
			return fmt.Errorf("report: render pdf: %w", err)
		}
		_, err = w.Write(pdf)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteCSV emits one row per transaction; warehouses without transactions
// get a single row with empty transaction columns.
func WriteCSV(w io.Writer, rep Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{
		"Warehouse ID", "Product ID", "Total Balance", "Sold Items", "Written Off Items", "Returned Items",
		"Transaction ID", "Transaction Type", "Quantity", "Comment", "Created At",
	}); err != nil {
		return err
	}
	for _, wh := range rep.Warehouses {
		head := []string{
			wh.ID.String(),
			wh.ProductID.String(),
			formatInt(wh.TotalBalance),
			formatInt(wh.SoldItems),
			formatInt(wh.WrittenOffItems),
			formatInt(wh.ReturnedItems),
		}
		if len(wh.Transactions) == 0 {
			if err := writer.Write(append(head, "", "", "", "", "")); err != nil {
				return err
			}
			continue
		}
		for _, t := range wh.Transactions {
			record := append(append([]string{}, head...), t.ID.String(), t.Type, formatInt(t.Quantity), t.Comment, t.CreatedAt)
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Warehouse report</title>
<style>body{font-family:sans-serif;font-size:11px}table{border-collapse:collapse;width:100%;margin-bottom:16px}td,th{border:1px solid #999;padding:3px 6px;text-align:left}</style>
</head><body>
<h1>Warehouse report</h1>
<p>{{if .From}}{{.From}} to {{.To}}{{else}}All time{{end}}</p>
{{range .Warehouses}}
<h2>{{.ProductID}}</h2>
<p>Total {{.TotalBalance}}, sold {{.SoldItems}}, written off {{.WrittenOffItems}}, returned {{.ReturnedItems}}</p>
<table><tr><th>Created</th><th>Type</th><th>Quantity</th><th>Comment</th></tr>
{{range .Transactions}}<tr><td>{{.CreatedAt}}</td><td>{{.Type}}</td><td>{{.Quantity}}</td><td>{{.Comment}}</td></tr>
{{end}}</table>
{{end}}
</body></html>`))

// WriteHTML renders the printable form of rep.
func WriteHTML(w io.Writer, rep Report) error {
	return htmlTemplate.Execute(w, rep)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
