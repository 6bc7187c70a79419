package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
)

// noFilterMarker is how extractors signal that the query carries no constraint.
const noFilterMarker = "NO_FILTER"

// ParsedQuery is the residual semantic query plus the structured predicate.
type ParsedQuery struct {
	Residual  string
	Predicate domain.FilterPredicate
	// Degraded is set when extraction output was unusable and ignored.
	Degraded bool
	// Dropped counts extracted constraints rejected by the schema.
	Dropped int
}

// SelfQueryParser turns free text into a residual query and a predicate over
// the index schema. It never fails a request.
type SelfQueryParser struct {
	extractor ports.FilterExtractor
	logger    *zap.Logger
}

func NewSelfQueryParser(extractor ports.FilterExtractor, logger *zap.Logger) *SelfQueryParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelfQueryParser{extractor: extractor, logger: logger}
}

func (p *SelfQueryParser) Parse(ctx context.Context, query domain.Query, schema domain.Schema) ParsedQuery {
	fallback := ParsedQuery{Residual: query.Text}
	if p.extractor == nil || schema.IsEmpty() {
		return fallback
	}

	raw, err := p.extractor.Extract(ctx, query, schema)
	if err != nil {
		p.logger.Warn("self_query_degraded",
			zap.String("reason", "extractor_error"),
			zap.Error(domain.WrapError(domain.ErrFilterParseDegraded, "extract filter", err)),
		)
		fallback.Degraded = true
		return fallback
	}

	parsed, err := ParseFilterOutput(raw, schema)
	if err != nil {
		p.logger.Warn("self_query_degraded",
			zap.String("reason", "unparseable_output"),
			zap.String("raw", truncateForLog(raw, 256)),
			zap.Error(err),
		)
		fallback.Degraded = true
		return fallback
	}
	if parsed.Residual == "" {
		parsed.Residual = query.Text
	}
	if parsed.Dropped > 0 {
		p.logger.Debug("self_query_dropped_constraints", zap.Int("dropped", parsed.Dropped))
	}
	return parsed
}

// ParseFilterOutput validates raw extractor output against schema. Output is
// a JSON object {"query": string, "filter": {attribute: value}} or the bare
// NO_FILTER marker. Attribute values are a string, an array of strings, a
// number, or a range object with gt/gte/lt/lte keys. Constraints on unknown
// attributes or with mismatched types are dropped.
func ParseFilterOutput(raw string, schema domain.Schema) (ParsedQuery, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(strings.Trim(trimmed, "\"'`"), noFilterMarker) {
		return ParsedQuery{}, nil
	}

	obj := extractJSONObject(trimmed)
	if obj == "" || !gjson.Valid(obj) {
		return ParsedQuery{}, domain.WrapError(domain.ErrFilterParseDegraded, "parse filter", errors.New("output is not valid json"))
	}
	root := gjson.Parse(obj)
	if !root.IsObject() {
		return ParsedQuery{}, domain.WrapError(domain.ErrFilterParseDegraded, "parse filter", errors.New("output is not a json object"))
	}

	out := ParsedQuery{Residual: strings.TrimSpace(root.Get("query").String())}

	filter := root.Get("filter")
	switch {
	case !filter.Exists() || filter.Type == gjson.Null:
		return out, nil
	case filter.Type == gjson.String && strings.EqualFold(strings.TrimSpace(filter.Str), noFilterMarker):
		return out, nil
	case !filter.IsObject():
		return ParsedQuery{}, domain.WrapError(domain.ErrFilterParseDegraded, "parse filter", fmt.Errorf("filter has type %s", filter.Type))
	}

	seen := make(map[string]struct{})
	filter.ForEach(func(key, value gjson.Result) bool {
		attr, ok := schema.Lookup(key.String())
		if !ok {
			out.Dropped++
			return true
		}
		if _, dup := seen[attr.Name]; dup {
			out.Dropped++
			return true
		}
		cond, ok := buildCondition(attr, value)
		if !ok {
			out.Dropped++
			return true
		}
		seen[attr.Name] = struct{}{}
		out.Predicate.Conditions = append(out.Predicate.Conditions, cond)
		return true
	})
	return out, nil
}

func buildCondition(attr domain.Attribute, value gjson.Result) (domain.Condition, bool) {
	switch attr.Type {
	case domain.AttributeString:
		return buildMatchCondition(attr, value)
	case domain.AttributeNumber:
		return buildRangeCondition(attr, value)
	default:
		return domain.Condition{}, false
	}
}

func buildMatchCondition(attr domain.Attribute, value gjson.Result) (domain.Condition, bool) {
	switch {
	case value.Type == gjson.String:
		v, ok := attr.Canonical(value.Str)
		if !ok {
			return domain.Condition{}, false
		}
		return domain.NewMatch(attr.Name, v), true
	case value.IsArray():
		for _, item := range value.Array() {
			if item.Type != gjson.String {
				continue
			}
			if v, ok := attr.Canonical(item.Str); ok {
				return domain.NewMatch(attr.Name, v), true
			}
		}
	case value.IsObject():
		eq := value.Get("eq")
		if eq.Type == gjson.String {
			if v, ok := attr.Canonical(eq.Str); ok {
				return domain.NewMatch(attr.Name, v), true
			}
		}
	}
	return domain.Condition{}, false
}

func buildRangeCondition(attr domain.Attribute, value gjson.Result) (domain.Condition, bool) {
	if value.Type == gjson.Number {
		n := value.Float()
		return domain.NewRange(attr.Name, domain.Range{Gte: &n, Lte: &n}), true
	}
	if !value.IsObject() {
		return domain.Condition{}, false
	}

	var r domain.Range
	valid := true
	value.ForEach(func(key, bound gjson.Result) bool {
		if bound.Type != gjson.Number {
			valid = false
			return false
		}
		n := bound.Float()
		switch strings.ToLower(strings.TrimPrefix(key.String(), "$")) {
		case "gt":
			r.Gt = &n
		case "gte", "min":
			r.Gte = &n
		case "lt":
			r.Lt = &n
		case "lte", "max":
			r.Lte = &n
		case "eq":
			r.Gte, r.Lte = &n, &n
		default:
			valid = false
			return false
		}
		return true
	})
	if !valid || r.IsEmpty() || !rangeSatisfiable(r) {
		return domain.Condition{}, false
	}
	return domain.NewRange(attr.Name, r), true
}

func rangeSatisfiable(r domain.Range) bool {
	lower, lowerSet := 0.0, false
	if r.Gte != nil {
		lower, lowerSet = *r.Gte, true
	}
	if r.Gt != nil && (!lowerSet || *r.Gt >= lower) {
		lower, lowerSet = *r.Gt, true
	}
	if !lowerSet {
		return true
	}
	if r.Lte != nil && *r.Lte < lower {
		return false
	}
	if r.Lt != nil && *r.Lt <= lower {
		return false
	}
	return true
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}

func truncateForLog(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
