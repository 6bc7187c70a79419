package index

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

const (
	LexicalFile = "lexical.bm25.zst"

	lexicalFormatVersion = 1
	defaultBM25K1        = 1.5
	defaultBM25B         = 0.75
)

// Hit is one scored document returned by an index search.
type Hit struct {
	DocumentID string
	Score      float64
}

type posting struct {
	Doc  int `json:"d"`
	Freq int `json:"f"`
}

// LexicalIndex is an in-memory BM25 index over document text.
type LexicalIndex struct {
	k1        float64
	b         float64
	docIDs    []string
	docLens   []int
	avgDocLen float64
	postings  map[string][]posting
}

type lexicalFile struct {
	Format    int                  `json:"format"`
	K1        float64              `json:"k1"`
	B         float64              `json:"b"`
	DocIDs    []string             `json:"doc_ids"`
	DocLens   []int                `json:"doc_lens"`
	AvgDocLen float64              `json:"avg_doc_len"`
	Postings  map[string][]posting `json:"postings"`
}

func BuildLexical(docs []domain.Document) *LexicalIndex {
	idx := &LexicalIndex{
		k1:       defaultBM25K1,
		b:        defaultBM25B,
		docIDs:   make([]string, 0, len(docs)),
		docLens:  make([]int, 0, len(docs)),
		postings: make(map[string][]posting),
	}

	total := 0
	for i, doc := range docs {
		tokens := Tokenize(doc.Text)
		freq := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freq[tok]++
		}
		terms := make([]string, 0, len(freq))
		for term := range freq {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			idx.postings[term] = append(idx.postings[term], posting{Doc: i, Freq: freq[term]})
		}
		idx.docIDs = append(idx.docIDs, doc.ID)
		idx.docLens = append(idx.docLens, len(tokens))
		total += len(tokens)
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(total) / float64(len(docs))
	}
	return idx
}

func (idx *LexicalIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.docIDs)
}

// Search scores every document sharing a term with the query and returns at
// most limit hits with a positive score, best first, ties by id.
func (idx *LexicalIndex) Search(query string, limit int) []Hit {
	if idx == nil || limit <= 0 || len(idx.docIDs) == 0 {
		return []Hit{}
	}

	seen := make(map[string]struct{})
	scores := make(map[int]float64)
	n := float64(len(idx.docIDs))
	for _, term := range Tokenize(query) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		list := idx.postings[term]
		if len(list) == 0 {
			continue
		}
		df := float64(len(list))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range list {
			tf := float64(p.Freq)
			norm := 1 - idx.b
			if idx.avgDocLen > 0 {
				norm += idx.b * float64(idx.docLens[p.Doc]) / idx.avgDocLen
			}
			scores[p.Doc] += idf * tf * (idx.k1 + 1) / (tf + idx.k1*norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, score := range scores {
		if score <= 0 || math.IsNaN(score) {
			continue
		}
		hits = append(hits, Hit{DocumentID: idx.docIDs[doc], Score: score})
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
}

func WriteLexical(path string, idx *LexicalIndex) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create lexical index: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("open zstd writer: %w", err)
	}
	payload := lexicalFile{
		Format:    lexicalFormatVersion,
		K1:        idx.k1,
		B:         idx.b,
		DocIDs:    idx.docIDs,
		DocLens:   idx.docLens,
		AvgDocLen: idx.avgDocLen,
		Postings:  idx.postings,
	}
	if err := json.NewEncoder(zw).Encode(payload); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode lexical index: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush lexical index: %w", err)
	}
	return f.Sync()
}

func ReadLexical(path string) (*LexicalIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd reader: %w", err)
	}
	defer zr.Close()

	var payload lexicalFile
	if err := json.NewDecoder(zr).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode lexical index: %w", err)
	}
	if payload.Format != lexicalFormatVersion {
		return nil, fmt.Errorf("unsupported lexical index format %d", payload.Format)
	}
	if len(payload.DocIDs) != len(payload.DocLens) {
		return nil, fmt.Errorf("lexical index is corrupt: %d ids, %d lengths", len(payload.DocIDs), len(payload.DocLens))
	}
	for term, list := range payload.Postings {
		for _, p := range list {
			if p.Doc < 0 || p.Doc >= len(payload.DocIDs) {
				return nil, fmt.Errorf("lexical index is corrupt: posting for %q points at %d", term, p.Doc)
			}
		}
	}
	if payload.Postings == nil {
		payload.Postings = make(map[string][]posting)
	}

	return &LexicalIndex{
		k1:        payload.K1,
		b:         payload.B,
		docIDs:    payload.DocIDs,
		docLens:   payload.DocLens,
		avgDocLen: payload.AvgDocLen,
		postings:  payload.Postings,
	}, nil
}
