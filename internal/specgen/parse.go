package specgen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/bizmatters/calculator-studio/internal/models"
)

// ErrInvalidSpec is returned when model output does not describe a calculator
var ErrInvalidSpec = errors.New("invalid calculator specification structure")

var (
	validate = validator.New()
	policy   = bluemonday.StrictPolicy()
)

// looseString accepts JSON strings, numbers and booleans. Models often emit
// placeholders like 70 instead of "70".
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*s = looseString(data)
	default:
		if _, err := strconv.ParseFloat(string(data), 64); err != nil {
			return fmt.Errorf("expected string, got %s", data)
		}
		*s = looseString(data)
	}
	return nil
}

// optionList keeps the usable entries of a select field's options. Objects
// contribute their label or value; anything else is dropped.
type optionList []looseString

func (o *optionList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		*o = nil
		return nil
	}
	out := make(optionList, 0, len(items))
	for _, item := range items {
		var v looseString
		if err := v.UnmarshalJSON(item); err == nil {
			out = append(out, v)
			continue
		}
		var obj struct {
			Label looseString `json:"label"`
			Value looseString `json:"value"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		if obj.Label != "" {
			out = append(out, obj.Label)
		} else if obj.Value != "" {
			out = append(out, obj.Value)
		}
	}
	*o = out
	return nil
}

type rawField struct {
	ID          looseString `json:"id"`
	Label       looseString `json:"label"`
	Type        looseString `json:"type"`
	Placeholder looseString `json:"placeholder"`
	Options     optionList  `json:"options"`
}

type rawSpec struct {
	Title       looseString `json:"title" validate:"required"`
	Kind        looseString `json:"kind"`
	Fields      []rawField  `json:"fields" validate:"required"`
	Formula     looseString `json:"formula"`
	CTA         looseString `json:"cta"`
	Description looseString `json:"description"`
}

// StripFences removes an optional ```json or ``` fence around the payload
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return s
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseSpec turns raw model output into a sanitized CalculatorSpec
func ParseSpec(text string) (models.CalculatorSpec, error) {
	var raw rawSpec
	if err := json.Unmarshal([]byte(StripFences(text)), &raw); err != nil {
		return models.CalculatorSpec{}, fmt.Errorf("failed to parse model response: %w", err)
	}

	raw.Title = looseString(clean(string(raw.Title)))
	if err := validate.Struct(raw); err != nil {
		return models.CalculatorSpec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	return sanitize(raw), nil
}

func sanitize(raw rawSpec) models.CalculatorSpec {
	spec := models.CalculatorSpec{
		Title:       string(raw.Title),
		Fields:      make([]models.CalculatorField, 0, len(raw.Fields)),
		Formula:     strings.TrimSpace(string(raw.Formula)),
		CTA:         clean(string(raw.CTA)),
		Description: clean(string(raw.Description)),
	}
	if spec.CTA == "" {
		spec.CTA = models.DefaultCTA
	}
	spec.Kind = models.ResolveKind(string(raw.Kind), spec.Title)

	seen := make(map[string]bool, len(raw.Fields))
	for i, rf := range raw.Fields {
		field := models.CalculatorField{
			ID:          strings.TrimSpace(string(rf.ID)),
			Label:       clean(string(rf.Label)),
			Type:        models.FieldType(strings.ToLower(strings.TrimSpace(string(rf.Type)))),
			Placeholder: clean(string(rf.Placeholder)),
		}
		if field.ID == "" {
			field.ID = fmt.Sprintf("field_%d", i)
		}
		field.ID = uniqueID(field.ID, seen)
		seen[field.ID] = true

		if field.Label == "" {
			field.Label = fmt.Sprintf("Field %d", i+1)
		}
		if !field.Type.Valid() {
			field.Type = models.FieldTypeNumber
		}
		if field.Type == models.FieldTypeSelect {
			for _, opt := range rf.Options {
				if o := clean(string(opt)); o != "" {
					field.Options = append(field.Options, o)
				}
			}
		}
		spec.Fields = append(spec.Fields, field)
	}

	return spec
}

func uniqueID(id string, seen map[string]bool) string {
	if !seen[id] {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", id, n)
		if !seen[candidate] {
			return candidate
		}
	}
}

// clean strips markup from model-provided display text
func clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
}
