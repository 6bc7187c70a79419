package domain

// Candidate is one document in a retrieval result set. Nil scores mean the
// corresponding stage did not see the document.
type Candidate struct {
	DocumentID  string   `json:"document_id"`
	SparseScore *float64 `json:"sparse_score,omitempty"`
	DenseScore  *float64 `json:"dense_score,omitempty"`
	FusedScore  float64  `json:"fused_score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

func SparseCandidate(id string, score float64) Candidate {
	return Candidate{DocumentID: id, SparseScore: &score}
}

func DenseCandidate(id string, score float64) Candidate {
	return Candidate{DocumentID: id, DenseScore: &score}
}

// CandidateIDs returns the document ids in order.
func CandidateIDs(candidates []Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.DocumentID)
	}
	return out
}

// ScoredDocument pairs a final candidate with its document body.
type ScoredDocument struct {
	Document
	Score float64 `json:"score"`
}

// Recommendation is the result of one workflow run.
type Recommendation struct {
	Answer    string           `json:"answer"`
	Indexes   []string         `json:"indexes"`
	Documents []ScoredDocument `json:"-"`
	Trace     RunTrace         `json:"-"`
}

// GenerationRequest is what the answer generator receives after reranking.
type GenerationRequest struct {
	Query     Query
	Documents []ScoredDocument
	NoMatch   bool
	// OffTopic asks for a short reply that steers the user back to fashion.
	OffTopic bool
}

// IndexRebuilt announces a freshly built artifact directory.
type IndexRebuilt struct {
	Version   string `json:"version"`
	Directory string `json:"directory"`
	Documents int    `json:"documents"`
}
