// Package calc evaluates arithmetic expressions typed into the query field.
// Evaluation checks the cycle's cancellation flag between steps so a
// superseded query abandons work immediately.
package calc

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/match"
	"github.com/perchrun/perch/internal/plugin"
)

// Plugin is the calculator, prefix "calc".
type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Prefix() string { return "calc" }

func (p *Plugin) Init(context.Context) error { return nil }

func (p *Plugin) Actions() []plugin.Action {
	return []plugin.Action{
		plugin.DefaultAction("Copy Value", "copy"),
		plugin.SuggestAction("Suggest Value", "suggest"),
	}
}

func (p *Plugin) GetForValues(_ context.Context, input *match.Input, sink *collect.TaggedSink) {
	expr := input.Raw()
	if expr == "" {
		return
	}

	value, err := evaluate(expr, sink.ShouldStop)
	if err != nil {
		return
	}
	result := format(value)

	sink.Add(collect.Entry{
		Name:         result,
		Subtitle:     fmt.Sprintf("= %s", expr),
		Data:         collect.NewData(result),
		PerfectMatch: true,
	})
}

func (p *Plugin) Handle(_ context.Context, data collect.Data, actionID string) (plugin.Effect, error) {
	value := collect.As[string](data)
	if actionID == "suggest" {
		return plugin.Effect{Kind: plugin.EffectSetQuery, Text: "calc " + value}, nil
	}
	return plugin.Effect{Kind: plugin.EffectCopy, Text: value}, nil
}

func format(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 12, 64)
}

// parser is a recursive-descent evaluator over + - * / % ^, parentheses and
// unary minus. interrupted is polled at every grammar step.
type parser struct {
	input       string
	pos         int
	interrupted func() bool
}

var errInterrupted = fmt.Errorf("evaluation interrupted")

func evaluate(input string, interrupted func() bool) (float64, error) {
	p := &parser{input: input, interrupted: interrupted}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("unexpected %q at offset %d", p.input[p.pos], p.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return v, nil
}

func (p *parser) expr() (float64, error) {
	if p.interrupted() {
		return 0, errInterrupted
	}
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term() (float64, error) {
	if p.interrupted() {
		return 0, errInterrupted
	}
	left, err := p.power()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/' && op != '%') {
			return left, nil
		}
		p.pos++
		right, err := p.power()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		}
	}
}

func (p *parser) power() (float64, error) {
	if p.interrupted() {
		return 0, errInterrupted
	}
	base, err := p.unary()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if op, ok := p.peek(); ok && op == '^' {
		p.pos++
		// Right associative.
		exp, err := p.power()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *parser) unary() (float64, error) {
	p.skipSpace()
	if op, ok := p.peek(); ok && op == '-' {
		p.pos++
		v, err := p.unary()
		return -v, err
	}
	return p.atom()
}

func (p *parser) atom() (float64, error) {
	p.skipSpace()
	c, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	if c == '(' {
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if c, ok := p.peek(); !ok || c != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}
	return p.number()
}

func (p *parser) number() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected a number at offset %d", start)
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", p.input[start:p.pos], err)
	}
	return v, nil
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}
