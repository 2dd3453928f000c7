package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-inventory/internal/inventory"
)

type stubSource struct {
	warehouses []inventory.Warehouse
	entries    []inventory.Transaction
	filter     inventory.TransactionFilter
	err        error
}

func (s *stubSource) ListWarehouses(context.Context) ([]inventory.Warehouse, error) {
	return s.warehouses, s.err
}

func (s *stubSource) ListTransactions(_ context.Context, filter inventory.TransactionFilter) ([]inventory.Transaction, error) {
	s.filter = filter
	return s.entries, nil
}

type stubPDF struct {
	html string
	err  error
}

func (p *stubPDF) RenderHTML(_ context.Context, html string) ([]byte, error) {
	p.html = html
	return []byte("%PDF"), p.err
}

var (
	productA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	productB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	created  = time.Date(2024, 5, 2, 14, 30, 5, 0, time.UTC)
)

func sampleSource() *stubSource {
	entry := func(product uuid.UUID, typ inventory.TransactionType, qty int64) inventory.Transaction {
		return inventory.Transaction{ID: uuid.New(), ProductID: product, Type: typ, Quantity: qty, IsActive: true, CreatedAt: created, Comment: string(typ)}
	}
	return &stubSource{
		warehouses: []inventory.Warehouse{
			{ID: uuid.New(), ProductID: productA, TotalBalance: 12, IsActive: true},
			{ID: uuid.New(), ProductID: productB, TotalBalance: 4, IsActive: true},
		},
		entries: []inventory.Transaction{
			entry(productA, inventory.TransactionTypeArrival, 20),
			entry(productA, inventory.TransactionTypeOrder, 5),
			entry(productA, inventory.TransactionTypeOrder, 2),
			entry(productA, inventory.TransactionTypeWriteOff, 3),
			entry(productA, inventory.TransactionTypeReturn, 2),
		},
	}
}

func newTestBuilder(src Source) *Builder {
	b := NewBuilder(src)
	b.now = func() time.Time { return created }
	return b
}

func TestBuildAggregatesPerProduct(t *testing.T) {
	src := sampleSource()
	rep, err := newTestBuilder(src).Build(context.Background(), Range{})
	require.NoError(t, err)

	require.True(t, src.filter.ActiveOnly)
	require.True(t, src.filter.From.IsZero())
	require.Empty(t, rep.From)
	require.Len(t, rep.Warehouses, 2)

	a := rep.Warehouses[0]
	require.Equal(t, productA, a.ProductID)
	require.EqualValues(t, 12, a.TotalBalance)
	require.EqualValues(t, 7, a.SoldItems)
	require.EqualValues(t, 3, a.WrittenOffItems)
	require.EqualValues(t, 2, a.ReturnedItems)
	require.Len(t, a.Transactions, 5)
	require.Equal(t, "02.05.2024 14:30:05", a.Transactions[0].CreatedAt)

	b := rep.Warehouses[1]
	require.Zero(t, b.SoldItems)
	require.NotNil(t, b.Transactions)
	require.Empty(t, b.Transactions)
}

func TestBuildAppliesRangeOnlyWhenBothEndsSet(t *testing.T) {
	src := sampleSource()
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	rep, err := newTestBuilder(src).Build(context.Background(), Range{From: from, To: to})
	require.NoError(t, err)
	require.Equal(t, from, src.filter.From)
	require.Equal(t, to, src.filter.To)
	require.Equal(t, "2024-05-01", rep.From)
	require.Equal(t, "2024-05-31", rep.To)

	_, err = newTestBuilder(src).Build(context.Background(), Range{From: from})
	require.NoError(t, err)
	require.True(t, src.filter.From.IsZero())

	_, err = newTestBuilder(src).Build(context.Background(), Range{From: to, To: from})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestBuildPropagatesSourceErrors(t *testing.T) {
	src := &stubSource{err: errors.New("db down")}
	_, err := newTestBuilder(src).Build(context.Background(), Range{})
	require.ErrorContains(t, err, "db down")
}

func TestParseDateAndFormat(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)
	d, err = ParseDate("")
	require.NoError(t, err)
	require.True(t, d.IsZero())
	_, err = ParseDate("29.02.2024")
	require.ErrorIs(t, err, ErrInvalidRange)

	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)
	_, err = ParseFormat("yaml")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	require.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
}

func buildSample(t *testing.T) Report {
	t.Helper()
	rep, err := newTestBuilder(sampleSource()).Build(context.Background(), Range{})
	require.NoError(t, err)
	return rep
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(nil).Export(context.Background(), &buf, buildSample(t), FormatJSON))

	var decoded struct {
		Warehouses []struct {
			ProductID       string `json:"product_id"`
			SoldItems       int64  `json:"sold_items"`
			WrittenOffItems int64  `json:"written_off_items"`
			Transactions    []struct {
				Type string `json:"transaction_type"`
			} `json:"transactions"`
		} `json:"warehouses"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Warehouses, 2)
	require.Equal(t, productA.String(), decoded.Warehouses[0].ProductID)
	require.EqualValues(t, 7, decoded.Warehouses[0].SoldItems)
	require.Equal(t, "write-off", decoded.Warehouses[0].Transactions[3].Type)
}

func TestExportXML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(nil).Export(context.Background(), &buf, buildSample(t), FormatXML))
	require.True(t, strings.HasPrefix(buf.String(), "<?xml"))
	require.Contains(t, buf.String(), "<warehouse_report")
	require.Contains(t, buf.String(), "<sold_items>7</sold_items>")

	var decoded struct {
		Warehouses []struct {
			ProductID    string   `xml:"product_id"`
			Transactions []string `xml:"transactions>transaction>type"`
		} `xml:"warehouse"`
	}
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Warehouses, 2)
	require.Len(t, decoded.Warehouses[0].Transactions, 5)
	require.Empty(t, decoded.Warehouses[1].Transactions)
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(nil).Export(context.Background(), &buf, buildSample(t), FormatCSV))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1+5+1)
	require.Equal(t, "Warehouse ID", records[0][0])
	require.Equal(t, productA.String(), records[1][1])
	require.Equal(t, "arrival", records[1][7])
	require.Equal(t, productB.String(), records[6][1])
	require.Empty(t, records[6][6])
}

func TestExportPDF(t *testing.T) {
	var buf bytes.Buffer
	err := NewExporter(nil).Export(context.Background(), &buf, buildSample(t), FormatPDF)
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	conv := &stubPDF{}
	require.NoError(t, NewExporter(conv).Export(context.Background(), &buf, buildSample(t), FormatPDF))
	require.Equal(t, "%PDF", buf.String())
	require.Contains(t, conv.html, productA.String())
	require.Contains(t, conv.html, "sold 7")

	conv.err = errors.New("gotenberg down")
	err = NewExporter(conv).Export(context.Background(), &bytes.Buffer{}, buildSample(t), FormatPDF)
	require.ErrorContains(t, err, "gotenberg down")
}
