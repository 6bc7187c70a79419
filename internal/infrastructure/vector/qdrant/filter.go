package qdrant

import (
	"strings"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

// payloadFor flattens document metadata into the point payload. String
// values are lowercased so exact payload matches behave like the
// case-insensitive local predicate.
func payloadFor(doc domain.Document) map[string]any {
	payload := make(map[string]any, len(doc.Metadata)+1)
	for key, value := range doc.Metadata {
		switch t := value.(type) {
		case string:
			payload[key] = strings.ToLower(strings.TrimSpace(t))
		case []string:
			items := make([]string, 0, len(t))
			for _, item := range t {
				items = append(items, strings.ToLower(strings.TrimSpace(item)))
			}
			payload[key] = items
		case []any:
			items := make([]any, 0, len(t))
			for _, item := range t {
				if s, ok := item.(string); ok {
					items = append(items, strings.ToLower(strings.TrimSpace(s)))
					continue
				}
				items = append(items, item)
			}
			payload[key] = items
		default:
			payload[key] = value
		}
	}
	payload["doc_id"] = doc.ID
	return payload
}

// buildFilter turns a predicate into a Qdrant "must" clause. Nil means no filter.
func buildFilter(predicate domain.FilterPredicate) map[string]any {
	if predicate.IsEmpty() {
		return nil
	}
	must := make([]map[string]any, 0, len(predicate.Conditions))
	for _, cond := range predicate.Conditions {
		switch cond.Kind {
		case domain.ConditionMatch:
			must = append(must, map[string]any{
				"key":   cond.Attribute,
				"match": map[string]any{"value": strings.ToLower(cond.Value)},
			})
		case domain.ConditionRange:
			bounds := make(map[string]float64, 4)
			setBound(bounds, "gt", cond.Range.Gt)
			setBound(bounds, "gte", cond.Range.Gte)
			setBound(bounds, "lt", cond.Range.Lt)
			setBound(bounds, "lte", cond.Range.Lte)
			must = append(must, map[string]any{
				"key":   cond.Attribute,
				"range": bounds,
			})
		}
	}
	return map[string]any{"must": must}
}

func setBound(dst map[string]float64, key string, v *float64) {
	if v != nil {
		dst[key] = *v
	}
}
