package formula

import "math"

type function struct {
	minArgs int
	maxArgs int // -1 means variadic
	call    func(args []float64) (float64, error)
}

var functions = map[string]function{
	"pmt":   {3, 5, func(a []float64) (float64, error) { return PMT(a[0], a[1], a[2], opt(a, 3), opt(a, 4)), nil }},
	"fv":    {3, 5, func(a []float64) (float64, error) { return FV(a[0], a[1], a[2], opt(a, 3), opt(a, 4)), nil }},
	"pv":    {3, 5, func(a []float64) (float64, error) { return PV(a[0], a[1], a[2], opt(a, 3), opt(a, 4)), nil }},
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"exp":   unary(math.Exp),
	"ln":    unary(math.Log),
	"log":   unary(math.Log),
	"log10": unary(math.Log10),
	"pow":   {2, 2, func(a []float64) (float64, error) { return math.Pow(a[0], a[1]), nil }},
	"min": {1, -1, func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	}},
	"max": {1, -1, func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	}},
	"round": {1, 2, func(a []float64) (float64, error) {
		scale := math.Pow(10, opt(a, 1))
		return math.Round(a[0]*scale) / scale, nil
	}},
}

func unary(f func(float64) float64) function {
	return function{1, 1, func(a []float64) (float64, error) { return f(a[0]), nil }}
}

func opt(a []float64, i int) float64 {
	if i < len(a) {
		return a[i]
	}
	return 0
}

// PMT returns the periodic payment for a loan using spreadsheet sign
// conventions: PMT(r, n, -principal) is positive. when is 0 for payments at
// the end of each period and 1 for the beginning.
func PMT(rate, nper, pv, fv, when float64) float64 {
	if rate == 0 {
		return -(pv + fv) / nper
	}
	q := math.Pow(1+rate, nper)
	return -(rate * (pv*q + fv)) / ((1 + rate*when) * (q - 1))
}

// FV returns the future value of an investment with periodic payments
func FV(rate, nper, pmt, pv, when float64) float64 {
	if rate == 0 {
		return -(pv + pmt*nper)
	}
	q := math.Pow(1+rate, nper)
	return -(pv*q + pmt*(1+rate*when)*(q-1)/rate)
}

// PV returns the present value of a series of future payments
func PV(rate, nper, pmt, fv, when float64) float64 {
	if rate == 0 {
		return -(fv + pmt*nper)
	}
	q := math.Pow(1+rate, nper)
	return -(fv + pmt*(1+rate*when)*(q-1)/rate) / q
}
