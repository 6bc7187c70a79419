package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	VectorsDir      = "vectors"
	vectorsManifest = "manifest.json"
	vectorsData     = "vectors.bin.zst"
	vectorsFormat   = 1
	metricCosine    = "cosine"
)

// VectorManifest describes the flat vector artifact. Row i of the data file
// belongs to IDs[i].
type VectorManifest struct {
	Format    int       `json:"format"`
	Version   string    `json:"version"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Count     int       `json:"count"`
	Metric    string    `json:"metric"`
	IDs       []string  `json:"ids"`
	CreatedAt time.Time `json:"created_at"`

	// Collection names the external vector store collection holding this
	// version's points. Empty when the version was not synced.
	Collection string `json:"collection,omitempty"`
}

// VectorIndex is a brute-force cosine index. Rows are stored unit-normalized.
type VectorIndex struct {
	manifest VectorManifest
	rows     []float32
}

func NewVectorIndex(version, model string, ids []string, vectors [][]float32) (*VectorIndex, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("vector count mismatch: %d ids, %d vectors", len(ids), len(vectors))
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	rows := make([]float32, 0, dim*len(vectors))
	for i, vec := range vectors {
		if len(vec) != dim || dim == 0 {
			return nil, fmt.Errorf("vector %q has dimension %d, want %d", ids[i], len(vec), dim)
		}
		rows = append(rows, normalize(vec)...)
	}
	return &VectorIndex{
		manifest: VectorManifest{
			Format:    vectorsFormat,
			Version:   version,
			Model:     model,
			Dimension: dim,
			Count:     len(ids),
			Metric:    metricCosine,
			IDs:       append([]string(nil), ids...),
			CreatedAt: time.Now().UTC(),
		},
		rows: rows,
	}, nil
}

func (v *VectorIndex) Manifest() VectorManifest {
	return v.manifest
}

func (v *VectorIndex) Len() int {
	if v == nil {
		return 0
	}
	return v.manifest.Count
}

func (v *VectorIndex) Dimension() int {
	return v.manifest.Dimension
}

// Search returns at most limit rows by cosine similarity to query, best first,
// ties by id.
func (v *VectorIndex) Search(query []float32, limit int) ([]Hit, error) {
	if v == nil || limit <= 0 || v.manifest.Count == 0 {
		return []Hit{}, nil
	}
	if len(query) != v.manifest.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), v.manifest.Dimension)
	}

	q := normalize(query)
	dim := v.manifest.Dimension
	hits := make([]Hit, 0, v.manifest.Count)
	for i, id := range v.manifest.IDs {
		row := v.rows[i*dim : (i+1)*dim]
		var dot float64
		for j := range row {
			dot += float64(row[j]) * float64(q[j])
		}
		hits = append(hits, Hit{DocumentID: id, Score: dot})
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range vec {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func WriteVectors(dir string, v *VectorIndex) error {
	target := filepath.Join(dir, VectorsDir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create vectors dir: %w", err)
	}

	manifest, err := json.MarshalIndent(v.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vector manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(target, vectorsManifest), manifest, 0o644); err != nil {
		return fmt.Errorf("write vector manifest: %w", err)
	}

	f, err := os.Create(filepath.Join(target, vectorsData))
	if err != nil {
		return fmt.Errorf("create vector data: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("open zstd writer: %w", err)
	}
	bw := bufio.NewWriter(zw)
	if err := binary.Write(bw, binary.LittleEndian, v.rows); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write vector data: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = zw.Close()
		return fmt.Errorf("flush vector data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close vector data: %w", err)
	}
	return f.Sync()
}

func ReadVectors(dir string) (*VectorIndex, error) {
	target := filepath.Join(dir, VectorsDir)
	raw, err := os.ReadFile(filepath.Join(target, vectorsManifest))
	if err != nil {
		return nil, fmt.Errorf("read vector manifest: %w", err)
	}
	var manifest VectorManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("decode vector manifest: %w", err)
	}
	if manifest.Format != vectorsFormat {
		return nil, fmt.Errorf("unsupported vector format %d", manifest.Format)
	}
	if manifest.Metric != metricCosine {
		return nil, fmt.Errorf("unsupported vector metric %q", manifest.Metric)
	}
	if manifest.Count != len(manifest.IDs) {
		return nil, fmt.Errorf("vector manifest lists %d ids for %d rows", len(manifest.IDs), manifest.Count)
	}

	f, err := os.Open(filepath.Join(target, vectorsData))
	if err != nil {
		return nil, fmt.Errorf("open vector data: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd reader: %w", err)
	}
	defer zr.Close()

	rows := make([]float32, manifest.Count*manifest.Dimension)
	if err := binary.Read(bufio.NewReader(zr), binary.LittleEndian, rows); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("vector data is truncated: want %d floats", len(rows))
		}
		return nil, fmt.Errorf("read vector data: %w", err)
	}
	return &VectorIndex{manifest: manifest, rows: rows}, nil
}
