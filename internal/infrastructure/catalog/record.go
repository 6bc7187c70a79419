// Package catalog loads product catalogs (CSV, XLSX, Postgres) into documents.
package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

var (
	textColumns = []string{"product details", "details", "description", "text"}
	idColumns   = []string{"id", "product id", "sku"}

	listSeparators = regexp.MustCompile(`[,/|;]+`)
	spaces         = regexp.MustCompile(`\s+`)
	priceNoise     = strings.NewReplacer("$", "", "¥", "", "￥", "", "€", "", "£", "", "rs.", "", "rs", "", "元", "", ",", "")
)

type columnMap struct {
	id    int
	text  int
	attrs map[string]int
}

// rowMapper turns catalog rows into documents. Attribute columns are
// resolved through the schema, so "Brand Name" lands in "brand".
type rowMapper struct {
	schema domain.Schema
	cols   columnMap
}

func newRowMapper(header []string, schema domain.Schema) (rowMapper, error) {
	cols := columnMap{id: -1, text: -1, attrs: make(map[string]int)}
	for i, raw := range header {
		name := normalizeHeader(raw)
		switch {
		case cols.text < 0 && contains(textColumns, name):
			cols.text = i
			continue
		case cols.id < 0 && contains(idColumns, name):
			cols.id = i
			continue
		}
		if attr, ok := schema.Lookup(name); ok {
			if _, taken := cols.attrs[attr.Name]; !taken {
				cols.attrs[attr.Name] = i
			}
		}
	}
	if cols.text < 0 {
		return rowMapper{}, domain.WrapError(domain.ErrInvalidInput, "catalog header",
			fmt.Errorf("no text column (one of %s) in %v", strings.Join(textColumns, ", "), header))
	}
	return rowMapper{schema: schema, cols: cols}, nil
}

// document maps one row. Rows without text are skipped (ok=false). Without
// an id column the row position is the id.
func (m rowMapper) document(position int, row []string) (domain.Document, bool) {
	text := cleanCell(cell(row, m.cols.text))
	if text == "" {
		return domain.Document{}, false
	}
	id := cleanCell(cell(row, m.cols.id))
	if id == "" {
		id = strconv.Itoa(position)
	}

	metadata := make(map[string]any, len(m.schema.Attributes))
	for _, attr := range m.schema.Attributes {
		idx, hasColumn := m.cols.attrs[attr.Name]
		raw := ""
		if hasColumn {
			raw = cleanCell(cell(row, idx))
		}
		if raw == "" {
			// category and color are often only in the description
			if attr.Type == domain.AttributeString && len(attr.Values) > 0 && !attr.Multi {
				if v, ok := attr.Detect(text); ok {
					metadata[attr.Name] = v
				}
			}
			continue
		}
		if v, ok := parseValue(attr, raw); ok {
			metadata[attr.Name] = v
		}
	}
	return domain.Document{ID: id, Text: text, Metadata: metadata}, true
}

func parseValue(attr domain.Attribute, raw string) (any, bool) {
	switch {
	case attr.Type == domain.AttributeNumber:
		return parsePrice(raw)
	case attr.Multi:
		var values []string
		for _, part := range listSeparators.Split(raw, -1) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if v, ok := attr.Canonical(part); ok {
				values = append(values, v)
				continue
			}
			values = append(values, strings.ToLower(part))
		}
		return values, len(values) > 0
	case len(attr.Values) > 0:
		if v, ok := attr.Canonical(raw); ok {
			return v, true
		}
		return strings.ToLower(raw), true
	default:
		return raw, true
	}
}

func parsePrice(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(priceNoise.Replace(strings.ToLower(raw)))
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func cleanCell(s string) string {
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return s
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(strings.TrimSpace(s)))
	return strings.Join(strings.Fields(s), " ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// mapRows applies the header of rows[0] to the rest.
func mapRows(rows [][]string, schema domain.Schema) ([]domain.Document, error) {
	if len(rows) == 0 {
		return []domain.Document{}, nil
	}
	mapper, err := newRowMapper(rows[0], schema)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if doc, ok := mapper.document(i, row); ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}
