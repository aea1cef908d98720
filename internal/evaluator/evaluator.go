// Package evaluator computes a display-ready result string from a calculator
// spec and the raw values a user entered. It never fails: problems with the
// input are reported as short messages in place of the result.
package evaluator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bizmatters/calculator-studio/internal/models"
)

// Status classifies an evaluation outcome
type Status string

const (
	StatusOK            Status = "ok"
	StatusMissingFields Status = "missing_fields"
	StatusInvalidNumber Status = "invalid_number"
	StatusAdvisory      Status = "advisory"
	StatusError         Status = "error"
)

// Messages shown in place of a result
const (
	MsgCalculationError = "Error in calculation"
	MsgFormulaError     = "Error in formula evaluation"
	MsgLoanAdvisory     = "Please check your input values"
	MsgBMIAdvisory      = "Please enter valid weight and height"
	MsgTipAdvisory      = "Please enter valid bill amount and tip percentage"
	MsgROIAdvisory      = "Please enter valid investment and return values"
	MsgMortgageAdvisory = "Please enter valid income and expenses"
	MsgCalorieAdvisory  = "Please enter valid weight, height, and age"
)

// Result is the outcome of an evaluation
type Result struct {
	Text   string `json:"result"`
	Status Status `json:"status"`
}

// Evaluate returns the result text for spec and values
func Evaluate(spec models.CalculatorSpec, values map[string]string) string {
	return EvaluateDetailed(spec, values).Text
}

// EvaluateDetailed evaluates spec against values and classifies the outcome
func EvaluateDetailed(spec models.CalculatorSpec, values map[string]string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Text: MsgCalculationError, Status: StatusError}
		}
	}()

	if missing := missingLabels(spec, values); len(missing) > 0 {
		return Result{
			Text:   "Please fill in: " + strings.Join(missing, ", "),
			Status: StatusMissingFields,
		}
	}

	in, err := coerce(spec, values)
	if err != nil {
		return Result{Text: err.Error(), Status: StatusInvalidNumber}
	}

	switch models.ParseKind(string(spec.Kind)) {
	case models.KindLoan:
		return loan(in)
	case models.KindBMI:
		return bmi(in)
	case models.KindTip:
		return tip(in)
	case models.KindROI:
		return roi(in)
	case models.KindMortgage:
		return mortgage(in)
	case models.KindCalorie:
		return calorie(in)
	default:
		return generic(spec, in)
	}
}

func missingLabels(spec models.CalculatorSpec, values map[string]string) []string {
	var missing []string
	for _, f := range spec.Fields {
		if v, ok := values[f.ID]; !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, f.Label)
		}
	}
	return missing
}

// InvalidNumberError reports a number field whose value is not a finite number
type InvalidNumberError struct {
	Label string
}

func (e *InvalidNumberError) Error() string {
	return fmt.Sprintf("Invalid number for %s", e.Label)
}

// inputs holds coerced field values
type inputs struct {
	numbers map[string]float64
	order   []string
	text    map[string]string
}

func (in inputs) num(id string) (float64, bool) {
	v, ok := in.numbers[id]
	return v, ok
}

// numOr returns the first present id's value, or def
func (in inputs) numOr(def float64, ids ...string) float64 {
	for _, id := range ids {
		if v, ok := in.numbers[id]; ok {
			return v
		}
	}
	return def
}

func coerce(spec models.CalculatorSpec, values map[string]string) (inputs, error) {
	in := inputs{
		numbers: make(map[string]float64, len(spec.Fields)),
		text:    make(map[string]string, len(spec.Fields)),
	}
	for _, f := range spec.Fields {
		raw := strings.TrimSpace(values[f.ID])
		if f.Type != models.FieldTypeNumber {
			in.text[f.ID] = raw
			continue
		}
		v, err := parseNumber(raw)
		if err != nil {
			return inputs{}, &InvalidNumberError{Label: f.Label}
		}
		if _, dup := in.numbers[f.ID]; !dup {
			in.order = append(in.order, f.ID)
		}
		in.numbers[f.ID] = v
	}
	return in, nil
}

func parseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

func ok(format string, args ...any) Result {
	return Result{Text: fmt.Sprintf(format, args...), Status: StatusOK}
}

func advisory(msg string) Result {
	return Result{Text: msg, Status: StatusAdvisory}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
