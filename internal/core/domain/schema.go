package domain

import (
	"sort"
	"strings"
)

type AttributeType string

const (
	AttributeString AttributeType = "string"
	AttributeNumber AttributeType = "number"
)

// Attribute describes one filterable metadata field and its value domain.
type Attribute struct {
	Name        string              `yaml:"name" json:"name"`
	Type        AttributeType       `yaml:"type" json:"type"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Names       []string            `yaml:"names,omitempty" json:"names,omitempty"`
	Values      []string            `yaml:"values,omitempty" json:"values,omitempty"`
	Aliases     map[string][]string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Multi       bool                `yaml:"multi,omitempty" json:"multi,omitempty"`
}

// Canonical maps a raw value onto the attribute's value domain. Attributes
// without listed values accept any non-empty string.
func (a Attribute) Canonical(raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", false
	}
	for _, allowed := range a.Values {
		if strings.ToLower(allowed) == v {
			return strings.ToLower(allowed), true
		}
	}
	for canonical, aliases := range a.Aliases {
		for _, alias := range aliases {
			if strings.ToLower(alias) == v {
				return strings.ToLower(canonical), true
			}
		}
	}
	if len(a.Values) == 0 {
		return v, true
	}
	return "", false
}

// Terms returns every surface form (canonical values and aliases) mapped to
// its canonical value, longest first.
func (a Attribute) Terms() []Term {
	seen := make(map[string]struct{})
	out := make([]Term, 0, len(a.Values))
	add := func(surface, canonical string) {
		surface = strings.ToLower(strings.TrimSpace(surface))
		if surface == "" {
			return
		}
		if _, ok := seen[surface]; ok {
			return
		}
		seen[surface] = struct{}{}
		out = append(out, Term{Surface: surface, Canonical: strings.ToLower(canonical)})
	}
	for _, v := range a.Values {
		add(v, v)
	}
	for canonical, aliases := range a.Aliases {
		for _, alias := range aliases {
			add(alias, canonical)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Surface) != len(out[j].Surface) {
			return len(out[i].Surface) > len(out[j].Surface)
		}
		return out[i].Surface < out[j].Surface
	})
	return out
}

type Term struct {
	Surface   string
	Canonical string
}

// Schema is the set of attributes a predicate may reference.
type Schema struct {
	Attributes []Attribute `yaml:"attributes" json:"attributes"`
}

func (s Schema) IsEmpty() bool {
	return len(s.Attributes) == 0
}

// Lookup resolves an attribute by name or any of its alternative names,
// ignoring case, underscores and dashes.
func (s Schema) Lookup(name string) (Attribute, bool) {
	key := normalizeAttributeName(name)
	if key == "" {
		return Attribute{}, false
	}
	for _, attr := range s.Attributes {
		if normalizeAttributeName(attr.Name) == key {
			return attr, true
		}
		for _, alt := range attr.Names {
			if normalizeAttributeName(alt) == key {
				return attr, true
			}
		}
	}
	return Attribute{}, false
}

// Merge returns s with values observed in the corpus added to string
// attributes that enumerate their values.
func (s Schema) Merge(observed map[string][]string) Schema {
	out := Schema{Attributes: make([]Attribute, 0, len(s.Attributes))}
	for _, attr := range s.Attributes {
		extra := observed[attr.Name]
		if attr.Type != AttributeString || len(attr.Values) == 0 || len(extra) == 0 {
			out.Attributes = append(out.Attributes, attr)
			continue
		}
		merged := append([]string(nil), attr.Values...)
		for _, v := range extra {
			if _, ok := attr.Canonical(v); !ok {
				merged = append(merged, strings.ToLower(v))
			}
		}
		attr.Values = merged
		out.Attributes = append(out.Attributes, attr)
	}
	return out
}

func normalizeAttributeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// DefaultSchema mirrors the catalog columns of the fashion dataset.
func DefaultSchema() Schema {
	return Schema{Attributes: []Attribute{
		{
			Name:        "category",
			Type:        AttributeString,
			Description: "product category",
			Values:      []string{"dress", "skirt", "pants", "shorts", "shirt", "sweater", "jacket", "coat", "vest", "shoes"},
			Aliases: map[string][]string{
				"dress":   {"dresses", "gown", "连衣裙", "裙子", "裙"},
				"skirt":   {"skirts", "半身裙"},
				"pants":   {"trousers", "jeans", "leggings", "裤子", "裤"},
				"shorts":  {"短裤"},
				"shirt":   {"shirts", "t-shirt", "t-shirts", "tshirt", "tee", "tees", "blouse", "t恤", "衬衫"},
				"sweater": {"sweaters", "hoodie", "pullover", "毛衣", "卫衣"},
				"jacket":  {"jackets", "blazer", "夹克"},
				"coat":    {"coats", "outerwear", "外套", "大衣"},
				"vest":    {"vests", "tank top", "背心"},
				"shoes":   {"shoe", "sneakers", "boots", "sandals", "鞋", "鞋子"},
			},
		},
		{
			Name:        "color",
			Type:        AttributeString,
			Description: "dominant product color",
			Names:       []string{"colour"},
			Values:      []string{"white", "black", "red", "blue", "green", "yellow", "pink", "grey", "brown", "beige", "purple", "orange", "navy"},
			Aliases: map[string][]string{
				"white":  {"白色", "白"},
				"black":  {"黑色", "黑"},
				"red":    {"红色", "红"},
				"blue":   {"蓝色", "蓝"},
				"green":  {"绿色", "绿"},
				"yellow": {"黄色", "黄"},
				"pink":   {"粉色", "粉红"},
				"grey":   {"gray", "灰色", "灰"},
				"brown":  {"棕色", "咖啡色"},
				"beige":  {"米色", "khaki"},
				"purple": {"紫色"},
				"orange": {"橙色"},
				"navy":   {"navy blue", "藏青色"},
			},
		},
		{
			Name:        "brand",
			Type:        AttributeString,
			Description: "brand name of the product",
			Names:       []string{"brand name"},
		},
		{
			Name:        "size",
			Type:        AttributeString,
			Description: "sizes the product is available in",
			Names:       []string{"available sizes", "sizes"},
			Values:      []string{"xs", "s", "m", "l", "xl", "xxl"},
			Aliases: map[string][]string{
				"xs":  {"extra small"},
				"s":   {"small"},
				"m":   {"medium"},
				"l":   {"large"},
				"xl":  {"extra large"},
				"xxl": {"2xl"},
			},
			Multi: true,
		},
		{
			Name:        "price",
			Type:        AttributeNumber,
			Description: "product price",
			Names:       []string{"product price"},
		},
	}}
}
