package evaluator

import (
	"math"
	"strconv"
	"strings"

	"github.com/bizmatters/calculator-studio/internal/formula"
	"github.com/bizmatters/calculator-studio/internal/models"
)

// dtiRatio caps housing payments at 28% of net monthly income
const dtiRatio = 0.28

func loan(in inputs) Result {
	amount, _ := in.num("amount")
	rate, _ := in.num("rate")
	term, _ := in.num("term")
	if amount == 0 || rate == 0 || term == 0 {
		return advisory(MsgLoanAdvisory)
	}

	payment := formula.PMT(rate/100/12, term*12, -amount, 0, 0)
	if !finite(payment) {
		return advisory(MsgLoanAdvisory)
	}
	return ok("$%.2f per month", payment)
}

func bmi(in inputs) Result {
	weight, _ := in.num("weight")
	height, _ := in.num("height")
	if weight == 0 || height == 0 {
		return advisory(MsgBMIAdvisory)
	}

	m := height / 100
	value := weight / (m * m)

	var category string
	switch {
	case value < 18.5:
		category = "Underweight"
	case value < 25:
		category = "Normal"
	case value < 30:
		category = "Overweight"
	default:
		category = "Obese"
	}
	return ok("BMI: %.1f (%s)", value, category)
}

func tip(in inputs) Result {
	bill, okBill := in.num("bill_amount")
	pct, okPct := in.num("tip_percentage")
	if !okBill || !okPct {
		return advisory(MsgTipAdvisory)
	}

	amount := bill * pct / 100
	return ok("Tip: $%.2f, Total: $%.2f", amount, bill+amount)
}

func roi(in inputs) Result {
	investment, _ := in.num("investment")
	returned, okReturn := in.num("return_value")
	if investment == 0 || !okReturn {
		return advisory(MsgROIAdvisory)
	}

	return ok("ROI: %.2f%%", (returned-investment)/investment*100)
}

func mortgage(in inputs) Result {
	income, okIncome := in.num("income")
	if !okIncome || income == 0 {
		return advisory(MsgMortgageAdvisory)
	}
	expenses := in.numOr(0, "expenses", "debt")
	down := in.numOr(0, "down_payment")
	rate := in.numOr(3.5, "rate") / 100 / 12
	n := in.numOr(30, "term") * 12
	if n <= 0 {
		return advisory(MsgMortgageAdvisory)
	}

	maxPayment := (income - expenses) * dtiRatio / 12
	var maxLoan float64
	if rate == 0 {
		maxLoan = maxPayment * n
	} else {
		maxLoan = formula.PV(rate, n, -maxPayment, 0, 0)
	}

	price := maxLoan + down
	if !finite(price) {
		return advisory(MsgMortgageAdvisory)
	}
	return ok("Max affordable home price: $%.0f", price)
}

// activityLevels maps named activity levels to TDEE multipliers. Names are
// matched after lowercasing and turning '_' and '-' into spaces.
var activityLevels = map[string]float64{
	"sedentary":         1.2,
	"light":             1.375,
	"lightly active":    1.375,
	"moderate":          1.55,
	"moderately active": 1.55,
	"active":            1.725,
	"very active":       1.9,
	"extra active":      1.9,
}

func calorie(in inputs) Result {
	weight, _ := in.num("weight")
	height, _ := in.num("height")
	age, _ := in.num("age")
	if weight == 0 || height == 0 || age == 0 {
		return advisory(MsgCalorieAdvisory)
	}

	bmr := 10*weight + 6.25*height - 5*age + 5
	if strings.EqualFold(in.text["gender"], "female") {
		bmr = 10*weight + 6.25*height - 5*age - 161
	}

	tdee := bmr * activityMultiplier(in)
	return ok("BMR: %.0f cal/day, TDEE: %.0f cal/day", bmr, tdee)
}

func activityMultiplier(in inputs) float64 {
	if v, ok := in.num("activity_level"); ok && v > 0 {
		return v
	}
	raw := strings.ToLower(strings.TrimSpace(in.text["activity_level"]))
	if raw == "" {
		return 1.2
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 && !math.IsInf(v, 0) {
		return v
	}
	name := strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(raw)), " ")
	if v, ok := activityLevels[name]; ok {
		return v
	}
	return 1.2
}

func generic(spec models.CalculatorSpec, in inputs) Result {
	src := strings.TrimSpace(spec.Formula)
	if src == "" {
		var sum float64
		for _, id := range in.order {
			sum += in.numbers[id]
		}
		return ok("Result: %.2f", sum)
	}

	value, err := formula.Eval(src, in.numbers)
	if err != nil {
		return Result{Text: MsgFormulaError, Status: StatusError}
	}
	return ok("Result: %.2f", value)
}
