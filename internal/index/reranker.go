package index

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const RerankerFile = "reranker.yaml"

const (
	RerankerCrossEncoderHTTP = "cross-encoder-http"
	RerankerTokenOverlap     = "token-overlap"
)

// RerankerHandle tells the API which pair scorer belongs to this index
// version.
type RerankerHandle struct {
	Kind           string `yaml:"kind"`
	Endpoint       string `yaml:"endpoint,omitempty"`
	Model          string `yaml:"model,omitempty"`
	TopN           int    `yaml:"top_n"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

func (h RerankerHandle) Validate() error {
	switch h.Kind {
	case RerankerCrossEncoderHTTP:
		if strings.TrimSpace(h.Endpoint) == "" {
			return fmt.Errorf("reranker %s requires an endpoint", h.Kind)
		}
	case RerankerTokenOverlap:
	default:
		return fmt.Errorf("unknown reranker kind %q", h.Kind)
	}
	if h.TopN < 0 {
		return fmt.Errorf("reranker top_n must be >= 0, got %d", h.TopN)
	}
	return nil
}

func WriteRerankerHandle(path string, h RerankerHandle) error {
	if err := h.Validate(); err != nil {
		return err
	}
	raw, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal reranker handle: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write reranker handle: %w", err)
	}
	return nil
}

func ReadRerankerHandle(path string) (RerankerHandle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RerankerHandle{}, fmt.Errorf("read reranker handle: %w", err)
	}
	var h RerankerHandle
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return RerankerHandle{}, fmt.Errorf("decode reranker handle: %w", err)
	}
	if err := h.Validate(); err != nil {
		return RerankerHandle{}, err
	}
	return h, nil
}
