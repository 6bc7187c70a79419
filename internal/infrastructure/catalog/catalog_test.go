package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

var fashionHeader = []string{"\ufeffid", "Product Details", "Brand Name", "Available Sizes", "Product Price"}

func TestCSVSourceMapsCatalogColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	body := "\ufeffid,Product Details,Brand Name,Available Sizes,Product Price\n" +
		"101,\"Plain  White T-shirt,   cotton\",Acme,\"S, M, Large\",$19.99\n" +
		"102,nan,Acme,M,10\n" +
		"103,红色连衣裙 夏季,Lily,\"M/L\",¥299\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	docs, err := NewCSVSource(path, domain.DefaultSchema()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	tee := docs[0]
	assert.Equal(t, "101", tee.ID)
	assert.Equal(t, "Plain White T-shirt, cotton", tee.Text)
	assert.Equal(t, "Acme", tee.Metadata["brand"])
	assert.Equal(t, []string{"s", "m", "l"}, tee.Metadata["size"])
	assert.Equal(t, 19.99, tee.Metadata["price"])
	assert.Equal(t, "shirt", tee.Metadata["category"])
	assert.Equal(t, "white", tee.Metadata["color"])

	dress := docs[1]
	assert.Equal(t, "103", dress.ID)
	assert.Equal(t, "dress", dress.Metadata["category"])
	assert.Equal(t, "red", dress.Metadata["color"])
	assert.Equal(t, 299.0, dress.Metadata["price"])
}

func TestCSVSourceWithoutIDUsesRowPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	body := "Product Details,category\nblue jeans,pants\nblack boots,\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	docs, err := NewCSVSource(path, domain.DefaultSchema()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "0", docs[0].ID)
	assert.Equal(t, "1", docs[1].ID)
	assert.Equal(t, "pants", docs[0].Metadata["category"])
	assert.Equal(t, "blue", docs[0].Metadata["color"])
	assert.Equal(t, "shoes", docs[1].Metadata["category"])
}

func TestCSVSourceRequiresTextColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,price\n1,2\n"), 0o644))

	_, err := NewCSVSource(path, domain.DefaultSchema()).Load(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestCSVSourceEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	docs, err := NewCSVSource(path, domain.DefaultSchema()).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestXLSXSourceReadsFirstSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &fashionHeader))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{7, "Navy wool coat", "Northwind", "XL", 120}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	docs, err := NewXLSXSource(path, "", domain.DefaultSchema()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "7", docs[0].ID)
	assert.Equal(t, "coat", docs[0].Metadata["category"])
	assert.Equal(t, "navy", docs[0].Metadata["color"])
	assert.Equal(t, []string{"xl"}, docs[0].Metadata["size"])
	assert.Equal(t, 120.0, docs[0].Metadata["price"])
}

func TestXLSXSourceMissingSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := NewXLSXSource(path, "Products", domain.DefaultSchema()).Load(context.Background())
	assert.Error(t, err)
}

func newSourceWithMock(t *testing.T, table string) (*PostgresSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresSource(db, table, domain.DefaultSchema()), mock
}

func TestPostgresSourceLoadsRows(t *testing.T) {
	source, mock := newSourceWithMock(t, "shop.products")

	rows := sqlmock.NewRows([]string{"id", "product_details", "brand_name", "available_sizes", "product_price", "color"}).
		AddRow("a1", "Slim black jeans", "Denimco", "S,M", "49.5", nil).
		AddRow("a2", "", "Denimco", "M", "10", nil).
		AddRow("a3", "Summer dress", nil, nil, nil, "Yellow")
	mock.ExpectQuery(`SELECT \* FROM "shop"\."products" ORDER BY 1`).WillReturnRows(rows)

	docs, err := source.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a1", docs[0].ID)
	assert.Equal(t, "pants", docs[0].Metadata["category"])
	assert.Equal(t, "black", docs[0].Metadata["color"])
	assert.Equal(t, 49.5, docs[0].Metadata["price"])
	assert.Equal(t, "yellow", docs[1].Metadata["color"])
	assert.NotContains(t, docs[1].Metadata, "brand")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSourceQueryError(t *testing.T) {
	source, mock := newSourceWithMock(t, "")
	mock.ExpectQuery(`SELECT \* FROM "products"`).WillReturnError(assert.AnError)

	_, err := source.Load(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{raw: "$1,299.00", want: 1299, ok: true},
		{raw: "Rs. 499", want: 499, ok: true},
		{raw: "88元", want: 88, ok: true},
		{raw: "free", ok: false},
		{raw: "-3", ok: false},
	}
	for _, tc := range cases {
		got, ok := parsePrice(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}
