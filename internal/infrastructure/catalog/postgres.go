package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

// PostgresSource reads every row of a catalog table. Column names follow the
// same conventions as the file sources.
type PostgresSource struct {
	db     *sql.DB
	table  string
	schema domain.Schema
}

func NewPostgresSource(db *sql.DB, table string, schema domain.Schema) *PostgresSource {
	if strings.TrimSpace(table) == "" {
		table = "products"
	}
	return &PostgresSource{db: db, table: table, schema: schema}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *PostgresSource) Load(ctx context.Context) ([]domain.Document, error) {
	table := pgx.Identifier(strings.Split(s.table, ".")).Sanitize()
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+table+" ORDER BY 1")
	if err != nil {
		return nil, fmt.Errorf("query catalog table: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("catalog columns: %w", err)
	}
	records := [][]string{columns}

	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		record := make([]string, len(columns))
		for i, v := range values {
			if v.Valid {
				record[i] = v.String
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}
	return mapRows(records, s.schema)
}
