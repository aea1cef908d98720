package formula

import "fmt"

type node interface {
	eval(env *env) (float64, error)
}

type numberNode struct{ value float64 }

type identNode struct {
	name string
	pos  int
}

type unaryNode struct {
	op      string
	operand node
}

type binaryNode struct {
	op          string
	left, right node
	pos         int
}

type callNode struct {
	name string
	args []node
	pos  int
}

// maxDepth bounds nesting of parentheses, calls, unary signs and exponents.
const maxDepth = 200

type parser struct {
	toks  []token
	pos   int
	depth int
	// identifiers referenced as variables, in first-seen order
	idents []string
	seen   map[string]bool
}

func parse(src string) (node, []string, error) {
	if len(src) > MaxSourceLen {
		return nil, nil, &SyntaxError{Pos: MaxSourceLen, Msg: "expression too long"}
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, nil, err
	}
	p := &parser{toks: toks, seen: map[string]bool{}}
	if p.peek().kind == tokEOF {
		return nil, nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}
	n, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
	}
	return n, p.idents, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return &SyntaxError{Pos: p.peek().pos, Msg: "expression nested too deeply"}
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

// expr := term (('+'|'-') term)*
func (p *parser) parseExpr() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op.text, left: left, right: right, pos: op.pos}
	}
	return left, nil
}

// term := unary (('*'|'/'|'%') unary)*
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/", "%") {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op.text, left: left, right: right, pos: op.pos}
	}
	return left, nil
}

// unary := ('-'|'+') unary | power
func (p *parser) parseUnary() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	if p.isOp("-", "+") {
		op := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op.text, operand: operand}, nil
	}
	return p.parsePower()
}

// power := primary ('^' unary)?
func (p *parser) parsePower() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.isOp("^") {
		op := p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: "^", left: base, right: exp, pos: op.pos}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &numberNode{value: tok.num}, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			p.next()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &callNode{name: tok.text, args: args, pos: tok.pos}, nil
		}
		if !p.seen[tok.text] {
			p.seen[tok.text] = true
			p.idents = append(p.idents, tok.text)
		}
		return &identNode{name: tok.text, pos: tok.pos}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &SyntaxError{Pos: closing.pos, Msg: "expected )"}
		}
		return inner, nil
	case tokEOF:
		return nil, &SyntaxError{Pos: tok.pos, Msg: "unexpected end of expression"}
	default:
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
	}
}

func (p *parser) parseArgs() ([]node, error) {
	var args []node
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		tok := p.next()
		switch tok.kind {
		case tokComma:
			continue
		case tokRParen:
			return args, nil
		default:
			return nil, &SyntaxError{Pos: tok.pos, Msg: "expected , or )"}
		}
	}
}
