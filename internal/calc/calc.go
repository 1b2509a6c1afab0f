// Package calc evaluates the quick calculator's arithmetic expressions with
// exact decimal arithmetic.
//
// Grammar:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/" | "%") unary }
//	unary  = "-" unary | "+" unary | factor
//	factor = number | "(" expr ")"
package calc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrSyntax         = errors.New("syntax error")
	ErrDivisionByZero = errors.New("division by zero")
	ErrEmpty          = errors.New("empty expression")
)

const maxDepth = 64

type parser struct {
	src   string
	pos   int
	depth int
}

// Eval evaluates expr. Both "." and "," are accepted as decimal separators;
// "×" and "÷" are accepted for multiply and divide.
func Eval(expr string) (decimal.Decimal, error) {
	expr = strings.NewReplacer("×", "*", "÷", "/", ",", ".").Replace(expr)
	if strings.TrimSpace(expr) == "" {
		return decimal.Zero, ErrEmpty
	}
	p := &parser{src: expr}
	v, err := p.expr()
	if err != nil {
		return decimal.Zero, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return decimal.Zero, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, p.src[p.pos], p.pos)
	}
	return v, nil
}

// Format renders a result without trailing zeros, rounded to 8 places.
func Format(d decimal.Decimal) string {
	return d.Round(8).String()
}

func (p *parser) expr() (decimal.Decimal, error) {
	left, err := p.term()
	if err != nil {
		return left, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term()
			if err != nil {
				return right, err
			}
			left = left.Add(right)
		case '-':
			p.pos++
			right, err := p.term()
			if err != nil {
				return right, err
			}
			left = left.Sub(right)
		default:
			return left, nil
		}
	}
}

func (p *parser) term() (decimal.Decimal, error) {
	left, err := p.unary()
	if err != nil {
		return left, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' && op != '%' {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return right, err
		}
		switch op {
		case '*':
			left = left.Mul(right)
		case '/':
			if right.IsZero() {
				return decimal.Zero, ErrDivisionByZero
			}
			left = left.Div(right)
		case '%':
			if right.IsZero() {
				return decimal.Zero, ErrDivisionByZero
			}
			left = left.Mod(right)
		}
	}
}

func (p *parser) unary() (decimal.Decimal, error) {
	switch p.peek() {
	case '-', '+':
		neg := p.src[p.pos] == '-'
		p.pos++
		if err := p.enter(); err != nil {
			return decimal.Zero, err
		}
		defer p.leave()
		v, err := p.unary()
		if err != nil {
			return v, err
		}
		if neg {
			v = v.Neg()
		}
		return v, nil
	}
	return p.factor()
}

func (p *parser) factor() (decimal.Decimal, error) {
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		if err := p.enter(); err != nil {
			return decimal.Zero, err
		}
		defer p.leave()
		v, err := p.expr()
		if err != nil {
			return v, err
		}
		if p.peek() != ')' {
			return decimal.Zero, fmt.Errorf("%w: missing )", ErrSyntax)
		}
		p.pos++
		return v, nil
	case c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	case c == 0:
		return decimal.Zero, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	default:
		return decimal.Zero, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, p.pos)
	}
}

func (p *parser) number() (decimal.Decimal, error) {
	start := p.pos
	dot := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' {
			if dot {
				break
			}
			dot = true
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if lit == "." {
		return decimal.Zero, fmt.Errorf("%w: bad number at %d", ErrSyntax, start)
	}
	v, err := decimal.NewFromString(lit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad number %q", ErrSyntax, lit)
	}
	return v, nil
}

// peek skips blanks and returns the next byte, or 0 at the end.
func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return fmt.Errorf("%w: nesting too deep", ErrSyntax)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }
