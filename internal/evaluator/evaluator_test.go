package evaluator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bizmatters/calculator-studio/internal/models"
)

func num(id, label string) models.CalculatorField {
	return models.CalculatorField{ID: id, Label: label, Type: models.FieldTypeNumber}
}

var (
	loanSpec = models.CalculatorSpec{
		Title: "Loan Payment Calculator",
		Kind:  models.KindLoan,
		Fields: []models.CalculatorField{
			num("amount", "Loan Amount"),
			num("rate", "Interest Rate (%)"),
			num("term", "Term (years)"),
		},
		Formula: "PMT(rate/100/12, term*12, -amount)",
	}
	bmiSpec = models.CalculatorSpec{
		Title:  "BMI Calculator",
		Kind:   models.KindBMI,
		Fields: []models.CalculatorField{num("weight", "Weight (kg)"), num("height", "Height (cm)")},
	}
	tipSpec = models.CalculatorSpec{
		Title:  "Tip Calculator",
		Kind:   models.KindTip,
		Fields: []models.CalculatorField{num("bill_amount", "Bill Amount"), num("tip_percentage", "Tip Percentage")},
	}
	roiSpec = models.CalculatorSpec{
		Title:  "ROI Calculator",
		Kind:   models.KindROI,
		Fields: []models.CalculatorField{num("investment", "Initial Investment"), num("return_value", "Final Value")},
	}
)

func TestEvaluate_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		spec   models.CalculatorSpec
		values map[string]string
		want   string
	}{
		{"loan", loanSpec, map[string]string{"amount": "20000", "rate": "6.5", "term": "5"}, "$391.32 per month"},
		{"bmi", bmiSpec, map[string]string{"weight": "70", "height": "175"}, "BMI: 22.9 (Normal)"},
		{"bmi underweight", bmiSpec, map[string]string{"weight": "50", "height": "175"}, "BMI: 16.3 (Underweight)"},
		{"bmi overweight", bmiSpec, map[string]string{"weight": "85", "height": "175"}, "BMI: 27.8 (Overweight)"},
		{"bmi obese", bmiSpec, map[string]string{"weight": "110", "height": "175"}, "BMI: 35.9 (Obese)"},
		{"tip", tipSpec, map[string]string{"bill_amount": "50", "tip_percentage": "18"}, "Tip: $9.00, Total: $59.00"},
		{"roi", roiSpec, map[string]string{"investment": "10000", "return_value": "12000"}, "ROI: 20.00%"},
		{"roi loss", roiSpec, map[string]string{"investment": "10000", "return_value": "7500"}, "ROI: -25.00%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := EvaluateDetailed(tt.spec, tt.values)
			assert.Equal(t, tt.want, res.Text)
			assert.Equal(t, StatusOK, res.Status)
		})
	}
}

func TestEvaluate_MissingFields(t *testing.T) {
	res := EvaluateDetailed(loanSpec, map[string]string{"rate": "6.5", "term": "   "})

	assert.Equal(t, "Please fill in: Loan Amount, Term (years)", res.Text)
	assert.Equal(t, StatusMissingFields, res.Status)

	assert.Equal(t, "Please fill in: Loan Amount, Interest Rate (%), Term (years)", Evaluate(loanSpec, nil))
}

func TestEvaluate_InvalidNumber(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   string
	}{
		{"letters", map[string]string{"amount": "abc", "rate": "x", "term": "5"}, "Invalid number for Loan Amount"},
		{"first in field order", map[string]string{"amount": "20000", "rate": "6.5%", "term": "five"}, "Invalid number for Interest Rate (%)"},
		{"trailing garbage", map[string]string{"amount": "20000abc", "rate": "6.5", "term": "5"}, "Invalid number for Loan Amount"},
		{"infinity", map[string]string{"amount": "Inf", "rate": "6.5", "term": "5"}, "Invalid number for Loan Amount"},
		{"nan", map[string]string{"amount": "20000", "rate": "NaN", "term": "5"}, "Invalid number for Interest Rate (%)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := EvaluateDetailed(loanSpec, tt.values)
			assert.Equal(t, tt.want, res.Text)
			assert.Equal(t, StatusInvalidNumber, res.Status)
		})
	}
}

func TestEvaluate_Advisories(t *testing.T) {
	assert.Equal(t, MsgLoanAdvisory, Evaluate(loanSpec, map[string]string{"amount": "20000", "rate": "0", "term": "5"}))
	assert.Equal(t, MsgBMIAdvisory, Evaluate(bmiSpec, map[string]string{"weight": "70", "height": "0"}))
	assert.Equal(t, MsgROIAdvisory, Evaluate(roiSpec, map[string]string{"investment": "0", "return_value": "5"}))

	// loan kind without the canonical inputs
	odd := models.CalculatorSpec{
		Title:  "Car Loan",
		Kind:   models.KindLoan,
		Fields: []models.CalculatorField{num("principal", "Principal")},
	}
	res := EvaluateDetailed(odd, map[string]string{"principal": "1000"})
	assert.Equal(t, MsgLoanAdvisory, res.Text)
	assert.Equal(t, StatusAdvisory, res.Status)
}

func TestEvaluate_Mortgage(t *testing.T) {
	spec := models.CalculatorSpec{
		Title: "Mortgage Affordability",
		Kind:  models.KindMortgage,
		Fields: []models.CalculatorField{
			num("income", "Annual Income"),
			num("expenses", "Annual Debts"),
			num("down_payment", "Down Payment"),
			num("rate", "Interest Rate (%)"),
			num("term", "Term (years)"),
		},
	}

	values := map[string]string{"income": "120000", "expenses": "24000", "down_payment": "50000", "rate": "6", "term": "30"}
	assert.Equal(t, "Max affordable home price: $423613", Evaluate(spec, values))

	values["rate"] = "0"
	assert.Equal(t, "Max affordable home price: $856400", Evaluate(spec, values))

	minimal := models.CalculatorSpec{
		Title:  "Affordability",
		Kind:   models.KindMortgage,
		Fields: []models.CalculatorField{num("debt", "Debt")},
	}
	assert.Equal(t, MsgMortgageAdvisory, Evaluate(minimal, map[string]string{"debt": "100"}))
}

func TestEvaluate_Calorie(t *testing.T) {
	spec := models.CalculatorSpec{
		Title: "Calorie Calculator",
		Kind:  models.KindCalorie,
		Fields: []models.CalculatorField{
			num("weight", "Weight (kg)"),
			num("height", "Height (cm)"),
			num("age", "Age"),
		},
	}
	values := map[string]string{"weight": "70", "height": "180", "age": "30"}
	assert.Equal(t, "BMR: 1680 cal/day, TDEE: 2016 cal/day", Evaluate(spec, values))

	withExtras := spec.Clone()
	withExtras.Fields = append(withExtras.Fields,
		models.CalculatorField{ID: "gender", Label: "Gender", Type: models.FieldTypeSelect, Options: []string{"male", "female"}},
		models.CalculatorField{ID: "activity_level", Label: "Activity", Type: models.FieldTypeSelect},
	)

	values["gender"] = "Female"
	values["activity_level"] = "sedentary"
	assert.Equal(t, "BMR: 1514 cal/day, TDEE: 1817 cal/day", Evaluate(withExtras, values))

	values["gender"] = "male"
	values["activity_level"] = "1.55"
	assert.Equal(t, "BMR: 1680 cal/day, TDEE: 2604 cal/day", Evaluate(withExtras, values))

	levels := map[string]string{
		"light":          "BMR: 1680 cal/day, TDEE: 2310 cal/day",
		"moderate":       "BMR: 1680 cal/day, TDEE: 2604 cal/day",
		"active":         "BMR: 1680 cal/day, TDEE: 2898 cal/day",
		"very_active":    "BMR: 1680 cal/day, TDEE: 3192 cal/day",
		"very active":    "BMR: 1680 cal/day, TDEE: 3192 cal/day",
		" Very-Active ":  "BMR: 1680 cal/day, TDEE: 3192 cal/day",
		"extra_active":   "BMR: 1680 cal/day, TDEE: 3192 cal/day",
		"lightly_active": "BMR: 1680 cal/day, TDEE: 2310 cal/day",
		"couch potato":   "BMR: 1680 cal/day, TDEE: 2016 cal/day",
	}
	for level, want := range levels {
		values["activity_level"] = level
		assert.Equal(t, want, Evaluate(withExtras, values), level)
	}

	values["age"] = "0"
	assert.Equal(t, MsgCalorieAdvisory, Evaluate(withExtras, values))
}

func TestEvaluate_Generic(t *testing.T) {
	t.Run("formula", func(t *testing.T) {
		spec := models.CalculatorSpec{
			Title:   "Circle Area Calculator",
			Kind:    models.KindGeneric,
			Fields:  []models.CalculatorField{num("radius", "Radius")},
			Formula: "Math.PI * radius * radius",
		}
		assert.Equal(t, "Result: 78.54", Evaluate(spec, map[string]string{"radius": "5"}))
	})

	t.Run("sum without formula", func(t *testing.T) {
		spec := models.CalculatorSpec{
			Title: "Adder",
			Fields: []models.CalculatorField{
				num("a", "A"),
				{ID: "note", Label: "Note", Type: models.FieldTypeText},
				num("b", "B"),
			},
		}
		assert.Equal(t, "Result: 12.50", Evaluate(spec, map[string]string{"a": "10", "b": "2.5", "note": "hello"}))
	})

	t.Run("formula errors", func(t *testing.T) {
		deep := strings.Repeat("(", 300000) + "distance" + strings.Repeat(")", 300000)
		for _, src := range []string{"amount *", "distance / fuel_used", "unknown_var + 1", "alert(1)", deep} {
			spec := models.CalculatorSpec{
				Title:   "Broken",
				Kind:    models.KindGeneric,
				Fields:  []models.CalculatorField{num("distance", "Distance"), num("fuel_used", "Fuel")},
				Formula: src,
			}
			res := EvaluateDetailed(spec, map[string]string{"distance": "300", "fuel_used": "0"})
			assert.Equal(t, MsgFormulaError, res.Text, src[:min(len(src), 40)])
			assert.Equal(t, StatusError, res.Status)
		}
	})

	t.Run("title does not drive dispatch", func(t *testing.T) {
		spec := models.CalculatorSpec{
			Title:   "Tip Calculator",
			Kind:    models.KindGeneric,
			Fields:  []models.CalculatorField{num("bill_amount", "Bill"), num("tip_percentage", "Tip")},
			Formula: "bill_amount * (tip_percentage / 100)",
		}
		assert.Equal(t, "Result: 9.00", Evaluate(spec, map[string]string{"bill_amount": "50", "tip_percentage": "18"}))
	})
}

func TestEvaluate_Idempotent(t *testing.T) {
	values := map[string]string{"amount": "20000", "rate": "6.5", "term": "5"}
	first := Evaluate(loanSpec, values)
	second := Evaluate(loanSpec, values)

	assert.Equal(t, first, second)
	assert.Equal(t, map[string]string{"amount": "20000", "rate": "6.5", "term": "5"}, values)
}
