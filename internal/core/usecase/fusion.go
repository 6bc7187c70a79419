package usecase

import (
	"math"
	"sort"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

const defaultFusionAlpha = 0.5

// HybridFusion merges dense and sparse candidates into one ranking using
// per-list min-max normalization and a weighted sum.
type HybridFusion struct {
	// Alpha weights the dense side; the sparse side gets 1-Alpha.
	Alpha float64
	// PoolSize caps the output. Zero or negative disables truncation.
	PoolSize int
}

func NewHybridFusion(alpha float64, poolSize int) HybridFusion {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		alpha = defaultFusionAlpha
	}
	return HybridFusion{Alpha: alpha, PoolSize: poolSize}
}

type fusedCandidate struct {
	candidate  domain.Candidate
	denseNorm  float64
	sparseNorm float64
}

func (f HybridFusion) Fuse(dense, sparse []domain.Candidate) []domain.Candidate {
	dense = dedupeByID(dense, func(c domain.Candidate) *float64 { return c.DenseScore })
	sparse = dedupeByID(sparse, func(c domain.Candidate) *float64 { return c.SparseScore })
	if len(dense) == 0 && len(sparse) == 0 {
		return []domain.Candidate{}
	}

	denseNorm := minMaxNormalize(dense, func(c domain.Candidate) *float64 { return c.DenseScore })
	sparseNorm := minMaxNormalize(sparse, func(c domain.Candidate) *float64 { return c.SparseScore })

	acc := make(map[string]*fusedCandidate, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))
	entry := func(id string) *fusedCandidate {
		if c, ok := acc[id]; ok {
			return c
		}
		c := &fusedCandidate{candidate: domain.Candidate{DocumentID: id}}
		acc[id] = c
		order = append(order, id)
		return c
	}

	for i, c := range dense {
		e := entry(c.DocumentID)
		e.candidate.DenseScore = copyScore(c.DenseScore)
		e.denseNorm = denseNorm[i]
	}
	for i, c := range sparse {
		e := entry(c.DocumentID)
		e.candidate.SparseScore = copyScore(c.SparseScore)
		e.sparseNorm = sparseNorm[i]
	}

	out := make([]domain.Candidate, 0, len(order))
	for _, id := range order {
		e := acc[id]
		e.candidate.FusedScore = f.Alpha*e.denseNorm + (1-f.Alpha)*e.sparseNorm
		out = append(out, e.candidate)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].DocumentID < out[j].DocumentID
	})

	return trimCandidates(out, f.PoolSize)
}

func trimCandidates(candidates []domain.Candidate, limit int) []domain.Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

// dedupeByID keeps the best-scored entry per document id. Entries without a
// score for the list's side are ignored.
func dedupeByID(in []domain.Candidate, score func(domain.Candidate) *float64) []domain.Candidate {
	if len(in) == 0 {
		return nil
	}
	index := make(map[string]int, len(in))
	out := make([]domain.Candidate, 0, len(in))
	for _, c := range in {
		s := score(c)
		if c.DocumentID == "" || s == nil || math.IsNaN(*s) {
			continue
		}
		if pos, ok := index[c.DocumentID]; ok {
			if *s > *score(out[pos]) {
				out[pos] = c
			}
			continue
		}
		index[c.DocumentID] = len(out)
		out = append(out, c)
	}
	return out
}

// minMaxNormalize scales scores into [0,1]. A list whose scores are all equal
// normalizes to 1.0.
func minMaxNormalize(in []domain.Candidate, score func(domain.Candidate) *float64) []float64 {
	out := make([]float64, len(in))
	if len(in) == 0 {
		return out
	}
	lo, hi := *score(in[0]), *score(in[0])
	for _, c := range in[1:] {
		v := *score(c)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	for i, c := range in {
		if span <= 0 {
			out[i] = 1
			continue
		}
		out[i] = (*score(c) - lo) / span
	}
	return out
}

func copyScore(v *float64) *float64 {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
