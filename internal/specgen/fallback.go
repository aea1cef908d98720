package specgen

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bizmatters/calculator-studio/internal/models"
)

// Family is one keyword family of the fallback table. When a Variant's
// keyword also appears in the prompt, the variant spec is used instead.
type Family struct {
	Name     string                `yaml:"name" validate:"required"`
	Keywords []string              `yaml:"keywords" validate:"required,min=1,dive,required"`
	Spec     models.CalculatorSpec `yaml:"spec"`
	Variants []Variant             `yaml:"variants"`
}

// Variant refines a family for a more specific keyword
type Variant struct {
	Keywords []string              `yaml:"keywords" validate:"required,min=1,dive,required"`
	Spec     models.CalculatorSpec `yaml:"spec"`
}

func (f Family) matches(prompt string) bool {
	return containsAny(prompt, f.Keywords)
}

func (f Family) pick(prompt string) models.CalculatorSpec {
	for _, v := range f.Variants {
		if containsAny(prompt, v.Keywords) {
			return v.Spec
		}
	}
	return f.Spec
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func number(id, label, placeholder string) models.CalculatorField {
	return models.CalculatorField{ID: id, Label: label, Type: models.FieldTypeNumber, Placeholder: placeholder}
}

// DefaultFamilyName names the spec returned when no family matches
const DefaultFamilyName = "default"

var simpleCalculator = models.CalculatorSpec{
	Title: "Simple Calculator",
	Kind:  models.KindGeneric,
	Fields: []models.CalculatorField{
		number("number1", "First Number", "10"),
		number("number2", "Second Number", "5"),
	},
	Formula: "number1 + number2",
	CTA:     "Calculate Sum",
}

// builtinFamilies are checked in order; the first match wins
var builtinFamilies = []Family{
	{
		Name:     "tax",
		Keywords: []string{"tax", "vat", "gst"},
		Spec: models.CalculatorSpec{
			Title: "Tax Calculator",
			Kind:  models.KindGeneric,
			Fields: []models.CalculatorField{
				number("amount", "Amount", "1000"),
				number("tax_rate", "Tax Rate (%)", "15"),
			},
			Formula: "amount * (tax_rate / 100)",
			CTA:     "Calculate Tax",
		},
	},
	{
		Name:     "percentage",
		Keywords: []string{"percentage", "percent", "%"},
		Spec: models.CalculatorSpec{
			Title: "Percentage Calculator",
			Kind:  models.KindGeneric,
			Fields: []models.CalculatorField{
				number("value", "Value", "250"),
				number("percentage", "Percentage (%)", "20"),
			},
			Formula: "value * (percentage / 100)",
			CTA:     "Calculate Percentage",
		},
	},
	{
		Name:     "discount",
		Keywords: []string{"discount", "sale"},
		Spec: models.CalculatorSpec{
			Title: "Discount Calculator",
			Kind:  models.KindGeneric,
			Fields: []models.CalculatorField{
				number("original_price", "Original Price", "100"),
				number("discount_rate", "Discount (%)", "25"),
			},
			Formula: "original_price - (original_price * (discount_rate / 100))",
			CTA:     "Calculate Final Price",
		},
	},
	{
		Name:     "loan",
		Keywords: []string{"loan", "payment", "mortgage"},
		Spec: models.CalculatorSpec{
			Title: "Loan Payment Calculator",
			Kind:  models.KindLoan,
			Fields: []models.CalculatorField{
				number("amount", "Loan Amount", "20000"),
				number("rate", "Interest Rate (%)", "6.5"),
				number("term", "Term (years)", "5"),
			},
			Formula: "PMT(rate/100/12, term*12, -amount)",
			CTA:     "Calculate Payment",
		},
	},
	{
		Name:     "bmi",
		Keywords: []string{"bmi", "body mass"},
		Spec: models.CalculatorSpec{
			Title: "BMI Calculator",
			Kind:  models.KindBMI,
			Fields: []models.CalculatorField{
				number("weight", "Weight (kg)", "70"),
				number("height", "Height (cm)", "175"),
			},
			Formula: "weight / ((height/100) * (height/100))",
			CTA:     "Calculate BMI",
		},
	},
	{
		Name:     "tip",
		Keywords: []string{"tip"},
		Spec: models.CalculatorSpec{
			Title: "Tip Calculator",
			Kind:  models.KindTip,
			Fields: []models.CalculatorField{
				number("bill_amount", "Bill Amount", "50.00"),
				number("tip_percentage", "Tip Percentage", "18"),
			},
			Formula: "bill_amount * (tip_percentage / 100)",
			CTA:     "Calculate Tip",
		},
	},
	{
		Name:     "roi",
		Keywords: []string{"roi", "return", "investment"},
		Spec: models.CalculatorSpec{
			Title: "ROI Calculator",
			Kind:  models.KindROI,
			Fields: []models.CalculatorField{
				number("investment", "Initial Investment", "10000"),
				number("return_value", "Final Value", "12000"),
			},
			Formula: "((return_value - investment) / investment) * 100",
			CTA:     "Calculate ROI",
		},
	},
	{
		Name:     "calorie",
		Keywords: []string{"calorie", "bmr"},
		Spec: models.CalculatorSpec{
			Title: "Calorie Calculator",
			Kind:  models.KindCalorie,
			Fields: []models.CalculatorField{
				number("weight", "Weight (kg)", "70"),
				number("height", "Height (cm)", "175"),
				number("age", "Age", "30"),
			},
			Formula: "10 * weight + 6.25 * height - 5 * age + 5",
			CTA:     "Calculate Calories",
		},
	},
	{
		Name:     "interest",
		Keywords: []string{"interest", "compound"},
		Spec: models.CalculatorSpec{
			Title: "Interest Calculator",
			Kind:  models.KindGeneric,
			Fields: []models.CalculatorField{
				number("principal", "Principal Amount", "5000"),
				number("rate", "Interest Rate (%)", "8"),
				number("time", "Time (years)", "3"),
			},
			Formula: "principal * (1 + (rate/100)) ^ time",
			CTA:     "Calculate Interest",
		},
	},
	{
		Name:     "area",
		Keywords: []string{"area", "rectangle", "circle"},
		Spec: models.CalculatorSpec{
			Title: "Rectangle Area Calculator",
			Kind:  models.KindGeneric,
			Fields: []models.CalculatorField{
				number("length", "Length", "10"),
				number("width", "Width", "8"),
			},
			Formula: "length * width",
			CTA:     "Calculate Area",
		},
		Variants: []Variant{
			{
				Keywords: []string{"circle"},
				Spec: models.CalculatorSpec{
					Title: "Circle Area Calculator",
					Kind:  models.KindGeneric,
					Fields: []models.CalculatorField{
						number("radius", "Radius", "5"),
					},
					Formula: "PI * radius * radius",
					CTA:     "Calculate Area",
				},
			},
		},
	},
	{
		Name:     "grade",
		Keywords: []string{"grade", "gpa"},
		Spec: models.CalculatorSpec{
			Title: "Grade Calculator",
			Kind:  models.KindGeneric,
			Fields: []models.CalculatorField{
				number("total_points", "Total Points Earned", "85"),
				number("max_points", "Maximum Points", "100"),
			},
			Formula: "(total_points / max_points) * 100",
			CTA:     "Calculate Grade",
		},
	},
	{
		Name:     "currency",
		Keywords: []string{"currency", "exchange"},
		Spec: models.CalculatorSpec{
			Title: "Currency Converter",
			Kind:  models.KindGeneric,
			Fields: []models.CalculatorField{
				number("amount", "Amount", "100"),
				number("rate", "Exchange Rate", "1.2"),
			},
			Formula: "amount * rate",
			CTA:     "Convert Currency",
		},
	},
	{
		Name:     "fuel",
		Keywords: []string{"fuel", "mpg", "mileage"},
		Spec: models.CalculatorSpec{
			Title: "Fuel Efficiency Calculator",
			Kind:  models.KindGeneric,
			Fields: []models.CalculatorField{
				number("distance", "Distance (miles)", "300"),
				number("fuel_used", "Fuel Used (gallons)", "12"),
			},
			Formula: "distance / fuel_used",
			CTA:     "Calculate MPG",
		},
	},
}

// FallbackTable selects a static spec by prompt keywords
type FallbackTable struct {
	families []Family
}

// NewFallbackTable returns the built-in families followed by extra ones
func NewFallbackTable(extra ...Family) *FallbackTable {
	families := make([]Family, 0, len(builtinFamilies)+len(extra))
	families = append(families, builtinFamilies...)
	families = append(families, extra...)
	return &FallbackTable{families: families}
}

// Lookup returns a copy of the spec for the first family matching prompt,
// or the Simple Calculator when none matches.
func (t *FallbackTable) Lookup(prompt string) (models.CalculatorSpec, string) {
	p := strings.ToLower(prompt)
	for _, f := range t.families {
		if f.matches(p) {
			return f.pick(p).Clone(), f.Name
		}
	}
	return simpleCalculator.Clone(), DefaultFamilyName
}

// Families lists family names in match order
func (t *FallbackTable) Families() []string {
	names := make([]string, len(t.families))
	for i, f := range t.families {
		names[i] = f.Name
	}
	return names
}

type fallbackFile struct {
	Families []Family `yaml:"families" validate:"dive"`
}

// LoadFallbackFile reads extra keyword families from a YAML file
func LoadFallbackFile(path string) ([]Family, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback file: %w", err)
	}

	var file fallbackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fallback file: %w", err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid fallback file: %w", err)
	}

	for i := range file.Families {
		f := &file.Families[i]
		if err := normalizeFallbackSpec(&f.Spec); err != nil {
			return nil, fmt.Errorf("family %q: %w", f.Name, err)
		}
		for j := range f.Variants {
			if err := normalizeFallbackSpec(&f.Variants[j].Spec); err != nil {
				return nil, fmt.Errorf("family %q variant %d: %w", f.Name, j, err)
			}
		}
	}
	return file.Families, nil
}

func normalizeFallbackSpec(spec *models.CalculatorSpec) error {
	if strings.TrimSpace(spec.Title) == "" || len(spec.Fields) == 0 {
		return ErrInvalidSpec
	}
	spec.Kind = models.ResolveKind(string(spec.Kind), spec.Title)
	if spec.CTA == "" {
		spec.CTA = models.DefaultCTA
	}
	for i := range spec.Fields {
		if !spec.Fields[i].Type.Valid() {
			spec.Fields[i].Type = models.FieldTypeNumber
		}
	}
	return nil
}
