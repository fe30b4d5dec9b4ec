package demangle

import (
	"fmt"
	"strings"
)

const maxIdentifierWords = 26

type parser struct {
	data     []byte
	pos      int
	resolver SymbolicReferenceResolver
	stack    []*Node
	subst    []*Node
	words    []string

	// set by 'K' and 'Ya', consumed by the next function type operator
	pendingThrows bool
	pendingAsync  bool
}

func newParser(data []byte, resolver SymbolicReferenceResolver) *parser {
	return &parser{
		data:     data,
		resolver: resolver,
		words:    make([]string, 0, maxIdentifierWords),
	}
}

func (p *parser) eof() bool {
	return p.pos >= len(p.data)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.data[p.pos]
}

func (p *parser) consume() byte {
	if p.eof() {
		return 0
	}
	b := p.data[p.pos]
	p.pos++
	return b
}

func (p *parser) expect(b byte) error {
	if p.eof() {
		return fmt.Errorf("%w: expected %q", ErrUnexpectedEnd, b)
	}
	if p.data[p.pos] != b {
		return fmt.Errorf("%w: unexpected character %q at position %d, expected %q", ErrMalformed, p.data[p.pos], p.pos, b)
	}
	p.pos++
	return nil
}

func (p *parser) push(n *Node) {
	p.stack = append(p.stack, n)
}

func (p *parser) pop() *Node {
	if len(p.stack) == 0 {
		return nil
	}
	n := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return n
}

func (p *parser) top() *Node {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// popKind pops the top of the stack only if it has the given kind.
func (p *parser) popKind(kind NodeKind) *Node {
	if t := p.top(); t != nil && t.Kind == kind {
		return p.pop()
	}
	return nil
}

func (p *parser) popType() (*Node, error) {
	n := p.pop()
	if n == nil {
		return nil, fmt.Errorf("%w: expected a type operand at position %d", ErrMalformed, p.pos)
	}
	if !n.isType() {
		return nil, fmt.Errorf("%w: expected a type operand at position %d, found %s", ErrMalformed, p.pos, n.Kind)
	}
	return n, nil
}

func (p *parser) addSubstitution(n *Node) {
	if n == nil {
		return
	}
	if debugEnabled {
		debugf("addSubstitution[%d]=%s\n", len(p.subst), Format(n))
	}
	p.subst = append(p.subst, n)
}

func (p *parser) substitution(index int) (*Node, error) {
	if index < 0 || index >= len(p.subst) {
		return nil, fmt.Errorf("%w: invalid substitution index %d (have %d)", ErrMalformed, index, len(p.subst))
	}
	return p.subst[index], nil
}

func (p *parser) readNumber() (int, error) {
	if p.eof() {
		return 0, fmt.Errorf("%w: while reading number", ErrUnexpectedEnd)
	}
	start := p.pos
	total := 0
	for !p.eof() {
		c := p.data[p.pos]
		if !isDigit(c) {
			break
		}
		total = total*10 + int(c-'0')
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("%w: expected digit at position %d", ErrMalformed, start)
	}
	return total, nil
}

// readIndex reads an INDEX production: '_' is 0, NATURAL '_' is NATURAL+1.
func (p *parser) readIndex() (uint32, error) {
	if p.peek() == '_' {
		p.pos++
		return 0, nil
	}
	n, err := p.readNumber()
	if err != nil {
		return 0, err
	}
	if err := p.expect('_'); err != nil {
		return 0, err
	}
	return uint32(n) + 1, nil
}

func (p *parser) readIdentifier() (string, error) {
	if p.eof() {
		return "", fmt.Errorf("%w: while reading identifier", ErrUnexpectedEnd)
	}
	if p.peek() == '0' {
		if p.pos+1 < len(p.data) && p.data[p.pos+1] == '0' {
			p.pos += 2
			return p.readPunycodeIdentifier()
		}
		p.pos++
		return p.readIdentifierWithWordSubstitutions()
	}
	chunk, err := p.readIdentifierChunk()
	if err != nil {
		return "", err
	}
	p.recordWordsFromLiteral(chunk)
	return chunk, nil
}

func (p *parser) readIdentifierWithWordSubstitutions() (string, error) {
	var out strings.Builder
	hasWordSubsts := true
	for {
		for hasWordSubsts && !p.eof() && (isLowerLetter(p.peek()) || isUpperLetter(p.peek())) {
			c := p.consume()
			idx := int(c - 'a')
			if isUpperLetter(c) {
				idx = int(c - 'A')
				hasWordSubsts = false
			}
			if idx >= len(p.words) {
				return "", fmt.Errorf("%w: word substitution index %d out of range (have %d words)", ErrMalformed, idx, len(p.words))
			}
			debugf("readIdentifierWithWordSubstitutions: subst [%d]=%q\n", idx, p.words[idx])
			out.WriteString(p.words[idx])
		}
		if p.peek() == '0' {
			p.pos++
			break
		}
		chunk, err := p.readIdentifierChunk()
		if err != nil {
			return "", err
		}
		out.WriteString(chunk)
		p.recordWordsFromLiteral(chunk)
		if !hasWordSubsts {
			break
		}
	}
	return p.finishIdentifier(&out)
}

func (p *parser) finishIdentifier(out *strings.Builder) (string, error) {
	if out.Len() == 0 {
		return "", fmt.Errorf("%w: empty identifier", ErrMalformed)
	}
	return out.String(), nil
}

func (p *parser) readPunycodeIdentifier() (string, error) {
	length, err := p.readNumber()
	if err != nil {
		return "", err
	}
	if p.peek() == '_' {
		p.pos++
	}
	if length <= 0 || p.pos+length > len(p.data) {
		return "", fmt.Errorf("%w: punycode identifier of length %d exceeds input", ErrMalformed, length)
	}
	encoded := string(p.data[p.pos : p.pos+length])
	p.pos += length
	decoded, err := decodeSwiftPunycode(encoded)
	if err != nil {
		return "", err
	}
	p.recordWordsFromLiteral(decoded)
	return decoded, nil
}

func (p *parser) readIdentifierChunk() (string, error) {
	length, err := p.readNumber()
	if err != nil {
		return "", err
	}
	if length <= 0 {
		return "", fmt.Errorf("%w: identifier length must be >0, got %d", ErrMalformed, length)
	}
	if p.pos+length > len(p.data) {
		return "", fmt.Errorf("%w: identifier of length %d at position %d", ErrUnexpectedEnd, length, p.pos)
	}
	start := p.pos
	p.pos += length
	return string(p.data[start:p.pos]), nil
}

// recordWordsFromLiteral splits an identifier into camel-case words that later
// identifiers may reference with word substitutions.
func (p *parser) recordWordsFromLiteral(lit string) {
	if len(lit) == 0 || len(p.words) >= maxIdentifierWords {
		return
	}
	wordStart := -1
	for i := 0; i <= len(lit); i++ {
		var curr byte
		if i < len(lit) {
			curr = lit[i]
		}
		if wordStart >= 0 && i > 0 && isWordEndChar(curr, lit[i-1]) {
			if i-wordStart >= 2 && len(p.words) < maxIdentifierWords {
				p.words = append(p.words, lit[wordStart:i])
			}
			wordStart = -1
		}
		if i < len(lit) && wordStart < 0 && isWordStartChar(curr) {
			wordStart = i
		}
	}
}

func isLowerLetter(b byte) bool {
	return b >= 'a' && b <= 'z'
}

func isUpperLetter(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isWordStartChar(b byte) bool {
	return !isDigit(b) && b != '_' && b != 0
}

func isWordEndChar(next, prev byte) bool {
	if next == '_' || next == 0 {
		return true
	}
	return !isUpperLetter(prev) && isUpperLetter(next)
}
