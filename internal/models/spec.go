package models

import "strings"

// FieldType is the input type of a calculator field
type FieldType string

const (
	FieldTypeNumber FieldType = "number"
	FieldTypeText   FieldType = "text"
	FieldTypeSelect FieldType = "select"
)

// Valid reports whether t is one of the recognized field types
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeNumber, FieldTypeText, FieldTypeSelect:
		return true
	}
	return false
}

// Kind is the closed set of calculator behaviours the evaluator knows about
type Kind string

const (
	KindLoan     Kind = "loan"
	KindBMI      Kind = "bmi"
	KindTip      Kind = "tip"
	KindROI      Kind = "roi"
	KindMortgage Kind = "mortgage"
	KindCalorie  Kind = "calorie"
	KindGeneric  Kind = "generic"
)

// Kinds lists every known kind in dispatch priority order
var Kinds = []Kind{KindLoan, KindBMI, KindTip, KindROI, KindMortgage, KindCalorie, KindGeneric}

// ParseKind normalizes a raw kind tag. Unknown tags map to KindGeneric.
func ParseKind(raw string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Kinds {
		if k == known {
			return k
		}
	}
	return KindGeneric
}

// KindFromTitle derives a kind from a free-text title.
// Only used when a generated spec carries no usable kind tag.
func KindFromTitle(title string) Kind {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "loan") || strings.Contains(t, "payment"):
		return KindLoan
	case strings.Contains(t, "bmi") || strings.Contains(t, "body mass"):
		return KindBMI
	case strings.Contains(t, "tip"):
		return KindTip
	case strings.Contains(t, "roi"):
		return KindROI
	case strings.Contains(t, "mortgage") || strings.Contains(t, "affordability"):
		return KindMortgage
	case strings.Contains(t, "calorie") || strings.Contains(t, "bmr"):
		return KindCalorie
	default:
		return KindGeneric
	}
}

// ResolveKind trusts a known kind tag and otherwise derives the kind from title
func ResolveKind(raw, title string) Kind {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if k := ParseKind(tag); k != KindGeneric || tag == string(KindGeneric) {
		return k
	}
	return KindFromTitle(title)
}

// CalculatorField is one labeled input slot of a calculator
type CalculatorField struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Placeholder string    `json:"placeholder"`
	Options     []string  `json:"options,omitempty"`
}

// CalculatorSpec is the declarative description of a generated calculator
type CalculatorSpec struct {
	Title       string            `json:"title"`
	Kind        Kind              `json:"kind"`
	Fields      []CalculatorField `json:"fields"`
	Formula     string            `json:"formula,omitempty"`
	CTA         string            `json:"cta"`
	Description string            `json:"description,omitempty"`
}

// DefaultCTA is used when a spec has no call-to-action label
const DefaultCTA = "Calculate"

// Clone returns a deep copy of the spec
func (s CalculatorSpec) Clone() CalculatorSpec {
	out := s
	if s.Fields != nil {
		out.Fields = make([]CalculatorField, len(s.Fields))
		for i, f := range s.Fields {
			if f.Options != nil {
				f.Options = append([]string(nil), f.Options...)
			}
			out.Fields[i] = f
		}
	}
	return out
}

// Normalized returns a copy with Kind resolved and CTA defaulted.
// Specs saved before kinds existed carry only a title.
func (s CalculatorSpec) Normalized() CalculatorSpec {
	out := s.Clone()
	out.Kind = ResolveKind(string(s.Kind), s.Title)
	if strings.TrimSpace(out.CTA) == "" {
		out.CTA = DefaultCTA
	}
	return out
}

// Field returns the field with the given id
func (s CalculatorSpec) Field(id string) (CalculatorField, bool) {
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return CalculatorField{}, false
}

// GenerationSource tells where a generated spec came from
type GenerationSource string

const (
	SourceModel    GenerationSource = "model"
	SourceFallback GenerationSource = "fallback"
)

// GenerationResult is the outcome of one generation request
type GenerationResult struct {
	Spec     CalculatorSpec   `json:"spec"`
	Source   GenerationSource `json:"source"`
	Provider string           `json:"provider,omitempty"`
	// Reason is set when Source is fallback
	Reason string `json:"reason,omitempty"`
}
