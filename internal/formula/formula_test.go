package formula

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr string
		vars map[string]float64
		want float64
	}{
		{"precedence", "1 + 2 * 3", nil, 7},
		{"parens", "(1 + 2) * 3", nil, 9},
		{"left assoc subtraction", "10 - 4 - 3", nil, 3},
		{"left assoc division", "100 / 10 / 5", nil, 2},
		{"power right assoc", "2 ^ 3 ^ 2", nil, 512},
		{"double star power", "2 ** 10", nil, 1024},
		{"unary minus binds looser than power", "-2 ^ 2", nil, -4},
		{"negative exponent", "2 ^ -1", nil, 0.5},
		{"modulo", "10 % 4", nil, 2},
		{"exponent literal", "1.5e3 + .5", nil, 1500.5},
		{"variables", "amount * (tax_rate / 100)", map[string]float64{"amount": 1000, "tax_rate": 15}, 150},
		{"constant", "round(PI * 5 * 5, 2)", nil, 78.54},
		{"math prefix", "Math.PI * radius * radius", map[string]float64{"radius": 1}, math.Pi},
		{"compound interest", "principal * (1 + (rate/100)) ** time", map[string]float64{"principal": 5000, "rate": 8, "time": 3}, 5000 * math.Pow(1.08, 3)},
		{"functions", "max(1, sqrt(16), min(9, 3)) + abs(-2)", nil, 6},
		{"variable shadows constant", "e * 2", map[string]float64{"e": 3}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, tt.vars)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEval_PMT(t *testing.T) {
	vars := map[string]float64{"amount": 20000, "rate": 6.5, "term": 5}

	got, err := Eval("PMT(rate/100/12, term*12, -amount)", vars)
	require.NoError(t, err)
	assert.InDelta(t, 391.32, got, 0.01)

	zeroRate, err := Eval("PMT(0, 10, -1000)", nil)
	require.NoError(t, err)
	assert.InDelta(t, 100, zeroRate, 1e-9)
}

func TestFVAndPVRoundTrip(t *testing.T) {
	pmt := PMT(0.01, 12, -1000, 0, 0)
	assert.InDelta(t, -1000, PV(0.01, 12, pmt, 0, 0), 1e-6)
	assert.InDelta(t, 0, FV(0.01, 12, pmt, -1000, 0), 1e-6)
}

func TestEval_Errors(t *testing.T) {
	t.Run("unknown identifier", func(t *testing.T) {
		_, err := Eval("x + 1", nil)
		var unknown *UnknownIdentifierError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "x", unknown.Name)
	})

	t.Run("unknown function", func(t *testing.T) {
		_, err := Eval("alert(1)", nil)
		var unknown *UnknownIdentifierError
		require.ErrorAs(t, err, &unknown)
	})

	t.Run("arity", func(t *testing.T) {
		_, err := Eval("pow(2)", nil)
		var arity *ArityError
		require.ErrorAs(t, err, &arity)
		assert.Equal(t, 1, arity.Got)
	})

	t.Run("division by zero", func(t *testing.T) {
		_, err := Eval("distance / fuel_used", map[string]float64{"distance": 300, "fuel_used": 0})
		assert.True(t, errors.Is(err, ErrDivisionByZero))
	})

	t.Run("non finite", func(t *testing.T) {
		_, err := Eval("sqrt(-1)", nil)
		assert.True(t, errors.Is(err, ErrNonFinite))
	})

	syntax := []string{"", "1 +", "(1 + 2", "1 2", "3 $ 4", "f(1,", "1.2.3"}
	for _, src := range syntax {
		t.Run("syntax "+src, func(t *testing.T) {
			_, err := Compile(src)
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
		})
	}
}

func TestCompile_Limits(t *testing.T) {
	t.Run("nesting within limit", func(t *testing.T) {
		src := strings.Repeat("(", 40) + "x" + strings.Repeat(")", 40)
		got, err := Eval(src, map[string]float64{"x": 3})
		require.NoError(t, err)
		assert.Equal(t, 3.0, got)
	})

	tooDeep := map[string]string{
		"parens":      strings.Repeat("(", 1000) + "x" + strings.Repeat(")", 1000),
		"unary signs": strings.Repeat("-", 500) + "1",
		"exponents":   strings.Repeat("2^", 500) + "1",
		"calls":       strings.Repeat("abs(", 500) + "1" + strings.Repeat(")", 500),
	}
	for name, src := range tooDeep {
		t.Run("too deep "+name, func(t *testing.T) {
			_, err := Compile(src)
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
		})
	}

	t.Run("too long", func(t *testing.T) {
		_, err := Compile(strings.Repeat("1+", MaxSourceLen) + "1")
		var se *SyntaxError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "expression too long", se.Msg)
	})
}

func TestProgram_Vars(t *testing.T) {
	prog, err := Compile("weight / ((height/100) * (height/100)) + PI * 0")
	require.NoError(t, err)
	assert.Equal(t, []string{"height", "weight"}, prog.Vars())
	assert.Equal(t, "weight / ((height/100) * (height/100)) + PI * 0", prog.String())

	// compiled programs are reusable
	a, err := prog.Eval(map[string]float64{"weight": 70, "height": 175})
	require.NoError(t, err)
	b, err := prog.Eval(map[string]float64{"weight": 70, "height": 175})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.InDelta(t, 22.857, a, 0.001)
}
