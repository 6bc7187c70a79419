package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

const MetadataFile = "metadata.db"

const metadataSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	position INTEGER NOT NULL,
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS attribute_schema (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	body TEXT NOT NULL
);
`

// MetadataStore holds the document bodies and the attribute schema of one
// index version. It is read fully into memory at load time.
type MetadataStore struct {
	order  []string
	docs   map[string]domain.Document
	schema domain.Schema
}

func NewMetadataStore(docs []domain.Document, schema domain.Schema) *MetadataStore {
	store := &MetadataStore{
		order:  make([]string, 0, len(docs)),
		docs:   make(map[string]domain.Document, len(docs)),
		schema: schema,
	}
	for _, doc := range docs {
		if _, dup := store.docs[doc.ID]; dup {
			continue
		}
		store.order = append(store.order, doc.ID)
		store.docs[doc.ID] = doc
	}
	return store
}

func (m *MetadataStore) Document(id string) (domain.Document, bool) {
	if m == nil {
		return domain.Document{}, false
	}
	doc, ok := m.docs[id]
	return doc, ok
}

func (m *MetadataStore) Documents() []domain.Document {
	out := make([]domain.Document, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.docs[id])
	}
	return out
}

func (m *MetadataStore) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

func (m *MetadataStore) Schema() domain.Schema {
	if m == nil {
		return domain.Schema{}
	}
	return m.schema
}

// WriteMetadata creates a fresh SQLite database at path.
func WriteMetadata(ctx context.Context, path string, store *MetadataStore) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale metadata db: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open metadata db: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, metadataSchemaSQL); err != nil {
		return fmt.Errorf("create metadata schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metadata tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (position, id, text, metadata) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare document insert: %w", err)
	}
	defer stmt.Close()

	for i, id := range store.order {
		doc := store.docs[id]
		meta := doc.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		rawMeta, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, i, id, doc.Text, string(rawMeta)); err != nil {
			return fmt.Errorf("insert document %s: %w", id, err)
		}
	}

	body, err := yaml.Marshal(store.schema)
	if err != nil {
		return fmt.Errorf("marshal attribute schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO attribute_schema (id, body) VALUES (1, ?)`, string(body)); err != nil {
		return fmt.Errorf("insert attribute schema: %w", err)
	}
	return tx.Commit()
}

// ReadMetadata loads documents and the schema from an existing database.
func ReadMetadata(ctx context.Context, path string) (*MetadataStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat metadata db: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT id, text, metadata FROM documents ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0, 256)
	for rows.Next() {
		var (
			doc     domain.Document
			rawMeta string
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &rawMeta); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(rawMeta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	var body string
	err = db.QueryRowContext(ctx, `SELECT body FROM attribute_schema WHERE id = 1`).Scan(&body)
	if err != nil {
		return nil, fmt.Errorf("query attribute schema: %w", err)
	}
	var schema domain.Schema
	if err := yaml.Unmarshal([]byte(body), &schema); err != nil {
		return nil, fmt.Errorf("decode attribute schema: %w", err)
	}

	return NewMetadataStore(docs, schema), nil
}
