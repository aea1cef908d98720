// Package formula implements the small arithmetic language calculator specs
// use for their formula strings: numbers, named variables bound to field
// values, + - * / % ^, parentheses and a fixed function set (PMT, FV, PV,
// sqrt, pow, ...). Expressions are parsed once and evaluated against a
// variable map; nothing in an expression can reach the host runtime.
package formula

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrDivisionByZero is returned for x/0 and x%0
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNonFinite is returned when a result is NaN or infinite
	ErrNonFinite = errors.New("result is not a finite number")
)

// UnknownIdentifierError is returned when an expression references a name
// that is neither a bound variable nor a constant
type UnknownIdentifierError struct {
	Name string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown identifier %q", e.Name)
}

// ArityError is returned when a function is called with the wrong number of arguments
type ArityError struct {
	Func string
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("wrong number of arguments to %s: %d", e.Func, e.Got)
}

// MaxSourceLen is the longest expression Compile accepts, in bytes
const MaxSourceLen = 4096

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

type env struct {
	vars map[string]float64
}

// Program is a compiled expression
type Program struct {
	src    string
	root   node
	idents []string
}

// Compile parses src into a reusable Program
func Compile(src string) (*Program, error) {
	root, idents, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Program{src: src, root: root, idents: idents}, nil
}

// Eval compiles and evaluates src in one step
func Eval(src string, vars map[string]float64) (float64, error) {
	prog, err := Compile(src)
	if err != nil {
		return 0, err
	}
	return prog.Eval(vars)
}

// String returns the source text
func (p *Program) String() string { return p.src }

// Vars returns the variable names the expression references, sorted.
// Built-in constants are excluded.
func (p *Program) Vars() []string {
	var out []string
	for _, id := range p.idents {
		if _, ok := constants[canonicalName(id)]; ok {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Eval evaluates the program with the given variable bindings
func (p *Program) Eval(vars map[string]float64) (float64, error) {
	v, err := p.root.eval(&env{vars: vars})
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNonFinite
	}
	return v, nil
}

// canonicalName strips a leading "Math." and lower-cases, so Math.PI, PI and
// pi all resolve to the same builtin.
func canonicalName(name string) string {
	name = strings.TrimPrefix(name, "Math.")
	return strings.ToLower(name)
}

func (n *numberNode) eval(*env) (float64, error) { return n.value, nil }

func (n *identNode) eval(e *env) (float64, error) {
	if v, ok := e.vars[n.name]; ok {
		return v, nil
	}
	if v, ok := constants[canonicalName(n.name)]; ok {
		return v, nil
	}
	return 0, &UnknownIdentifierError{Name: n.name}
}

func (n *unaryNode) eval(e *env) (float64, error) {
	v, err := n.operand.eval(e)
	if err != nil {
		return 0, err
	}
	if n.op == "-" {
		return -v, nil
	}
	return v, nil
}

func (n *binaryNode) eval(e *env) (float64, error) {
	l, err := n.left.eval(e)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(e)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return math.Mod(l, r), nil
	case "^":
		return math.Pow(l, r), nil
	}
	return 0, fmt.Errorf("unknown operator %q", n.op)
}

func (n *callNode) eval(e *env) (float64, error) {
	fn, ok := functions[canonicalName(n.name)]
	if !ok {
		return 0, &UnknownIdentifierError{Name: n.name}
	}
	if len(n.args) < fn.minArgs || (fn.maxArgs >= 0 && len(n.args) > fn.maxArgs) {
		return 0, &ArityError{Func: n.name, Got: len(n.args)}
	}
	args := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(e)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	return fn.call(args)
}
