package domain

import "time"

type WorkflowState string

const (
	StateStart             WorkflowState = "START"
	StateTopicRejected     WorkflowState = "TOPIC_REJECTED"
	StateFilteredRetrieved WorkflowState = "FILTERED_RETRIEVED"
	StateFallbackRetrieved WorkflowState = "FALLBACK_RETRIEVED"
	StateReranked          WorkflowState = "RERANKED"
	StateAnswered          WorkflowState = "ANSWERED"
	StateFailed            WorkflowState = "FAILED"
)

func (s WorkflowState) Terminal() bool {
	switch s {
	case StateTopicRejected, StateAnswered, StateFailed:
		return true
	default:
		return false
	}
}

// RunTrace summarizes how a single request moved through the workflow.
type RunTrace struct {
	States         []WorkflowState          `json:"states"`
	Final          WorkflowState            `json:"final"`
	IndexVersion   string                   `json:"index_version,omitempty"`
	Residual       string                   `json:"residual,omitempty"`
	Predicate      FilterPredicate          `json:"predicate"`
	FallbackUsed   bool                     `json:"fallback_used"`
	FilterDegraded bool                     `json:"filter_degraded"`
	RerankDegraded bool                     `json:"rerank_degraded"`
	NoMatch        bool                     `json:"no_match"`
	FailedStage    string                   `json:"failed_stage,omitempty"`
	StageDurations map[string]time.Duration `json:"-"`
}
