package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

// CSVSource reads a catalog CSV whose first record is the header.
type CSVSource struct {
	path   string
	schema domain.Schema
}

func NewCSVSource(path string, schema domain.Schema) *CSVSource {
	return &CSVSource{path: path, schema: schema}
}

func (s *CSVSource) Load(ctx context.Context) ([]domain.Document, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open catalog csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read catalog csv: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return mapRows(rows, s.schema)
}

// XLSXSource reads one worksheet of a workbook; the first sheet by default.
type XLSXSource struct {
	path   string
	sheet  string
	schema domain.Schema
}

func NewXLSXSource(path, sheet string, schema domain.Schema) *XLSXSource {
	return &XLSXSource{path: path, sheet: strings.TrimSpace(sheet), schema: schema}
}

func (s *XLSXSource) Load(ctx context.Context) ([]domain.Document, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open catalog workbook: %w", err)
	}
	defer f.Close()

	sheet := s.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return []domain.Document{}, nil
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return mapRows(rows, s.schema)
}
