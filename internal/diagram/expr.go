package diagram

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// evalFunc evaluates a single-variable expression at x.
type evalFunc func(x float64) float64

var exprFuncs = map[string]func(float64) float64{
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
	"exp":  math.Exp,
	"log":  math.Log,
	"ln":   math.Log,
	"sqrt": math.Sqrt,
	"abs":  math.Abs,
}

// compileExpr parses an arithmetic expression in x ("x^2 - 2*x + 1",
// "sin(x)/x") into an evaluator. Supported: + - * / ^ with the usual
// precedence, parentheses, numeric literals, the variable x, and the
// functions sin, cos, tan, exp, log, ln, sqrt, abs. Multiplication must be
// explicit (2*x, not 2x).
func compileExpr(src string) (evalFunc, error) {
	p := &exprParser{src: strings.TrimSpace(src)}
	if p.src == "" {
		return nil, fmt.Errorf("empty expression")
	}
	f, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if p.peek() != 0 {
		return nil, fmt.Errorf("unexpected %q in expression", p.src[p.pos:])
	}
	return f, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) peek() byte {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *exprParser) parseSum() (evalFunc, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		l := left
		if op == '+' {
			left = func(x float64) float64 { return l(x) + right(x) }
		} else {
			left = func(x float64) float64 { return l(x) - right(x) }
		}
	}
}

func (p *exprParser) parseProduct() (evalFunc, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l := left
		if op == '*' {
			left = func(x float64) float64 { return l(x) * right(x) }
		} else {
			left = func(x float64) float64 { return l(x) / right(x) }
		}
	}
}

func (p *exprParser) parseUnary() (evalFunc, error) {
	if p.peek() == '-' {
		p.pos++
		f, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return func(x float64) float64 { return -f(x) }, nil
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (evalFunc, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if p.peek() != '^' {
		return base, nil
	}
	p.pos++
	// Right associative: x^2^3 is x^(2^3).
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return func(x float64) float64 { return math.Pow(base(x), exp(x)) }, nil
}

func (p *exprParser) parseAtom() (evalFunc, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		f, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return f, nil

	case c >= '0' && c <= '9' || c == '.':
		start := p.pos
		for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
			p.pos++
		}
		v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p.src[start:p.pos])
		}
		return func(float64) float64 { return v }, nil

	case isExprLetter(c):
		start := p.pos
		for p.pos < len(p.src) && isExprLetter(p.src[p.pos]) {
			p.pos++
		}
		name := p.src[start:p.pos]
		if name == "x" {
			return func(x float64) float64 { return x }, nil
		}
		fn, ok := exprFuncs[name]
		if !ok {
			return nil, fmt.Errorf("unknown function %q", name)
		}
		if p.peek() != '(' {
			return nil, fmt.Errorf("function %q requires parentheses", name)
		}
		p.pos++
		arg, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing closing parenthesis after %q", name)
		}
		p.pos++
		return func(x float64) float64 { return fn(arg(x)) }, nil

	case c == 0:
		return nil, fmt.Errorf("expression ended unexpectedly")
	default:
		return nil, fmt.Errorf("unexpected %q in expression", string(c))
	}
}

func isExprLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
