package pylon

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/plywood-build/plywood/pkg/perrors"
)

// tokenKind enumerates the lexical tokens Pylon's grammar needs.
// NewLine is kept distinct from other whitespace because, at the top
// level and inside an object, a bare newline (not a comma) also
// separates items.
type tokenKind int

const (
	tokInvalid tokenKind = iota
	tokOpenCurly
	tokCloseCurly
	tokOpenSquare
	tokCloseSquare
	tokColon
	tokEquals
	tokComma
	tokSemicolon
	tokText
	tokNewLine
	tokEOF
)

type token struct {
	kind    tokenKind
	text    string
	fileOfs int
}

// scope records what the parser was doing when an error occurred, so
// messages can add lines such as `while parsing property "sources"`
// to the line:column position of the error.
type scope struct {
	kind    string // "object", "property", "array", "duplicate key"
	name    string
	fileOfs int
}

// ParseError is returned by Parse on malformed input. Offset is a
// byte offset into the source that Line/Column were computed from.
type ParseError struct {
	Message string
	Offset  int
	Line    int
	Column  int
	Scopes  []scope
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%d: %s", e.Line, e.Column, e.Message)
	for i := len(e.Scopes) - 1; i >= 0; i-- {
		s := e.Scopes[i]
		if s.name != "" {
			fmt.Fprintf(&b, "\n  while parsing %s %q", s.kind, s.name)
		} else {
			fmt.Fprintf(&b, "\n  while parsing %s", s.kind)
		}
	}
	return b.String()
}

// Parser holds the mutable state of a single parse. It is not
// reentrant or reusable across documents.
type Parser struct {
	src     string
	pos     int
	tabSize int
	scopes  []scope
	err     *ParseError
}

// NewParser constructs a Parser over src. Callers that want custom tab
// handling for column numbers should call SetTabSize before Parse.
func NewParser(src string) *Parser {
	return &Parser{src: src, tabSize: 4}
}

// SetTabSize configures how a tab character advances the reported
// column number.
func (p *Parser) SetTabSize(n int) { p.tabSize = n }

// Parse parses the entire document, returning its root Node. The
// document's top level is always treated as an implicit object (bare
// key: value pairs with no enclosing braces), matching Pylon's
// convention for top-level config files. A key repeated within one
// object does not stop the parse: the later value replaces the
// earlier one, and Parse returns the complete root together with a
// parse error located at the repeated key.
func Parse(src string) (*Node, error) {
	p := NewParser(src)
	return p.Parse()
}

// Parse runs this Parser over its configured source.
func (p *Parser) Parse() (*Node, error) {
	root, err := p.parseObjectBody(true)
	if err != nil {
		return nil, err
	}
	p.skipSpaceAndComments()
	if p.pos < len(p.src) {
		return nil, p.fail("unexpected trailing content after top-level object")
	}
	if p.err != nil {
		return root, perrors.Parse("%s", p.err.Error()).WithOperation("pylon.parse")
	}
	return root, nil
}

func (p *Parser) fail(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	line, col := p.lineCol(p.pos)
	pe := &ParseError{Message: msg, Offset: p.pos, Line: line, Column: col, Scopes: append([]scope(nil), p.scopes...)}
	p.err = pe
	return perrors.Parse("%s", pe.Error()).WithOperation("pylon.parse")
}

func (p *Parser) lineCol(offset int) (int, int) {
	line := 1
	col := 1
	for i := 0; i < offset && i < len(p.src); {
		r, size := utf8.DecodeRuneInString(p.src[i:])
		if r == '\n' {
			line++
			col = 1
		} else if r == '\t' {
			col += p.tabSize
		} else {
			col++
		}
		i += size
	}
	return line, col
}

func (p *Parser) pushScope(kind, name string) {
	p.scopes = append(p.scopes, scope{kind: kind, name: name, fileOfs: p.pos})
}

func (p *Parser) popScope() {
	p.scopes = p.scopes[:len(p.scopes)-1]
}

// skipSpaceAndComments advances past whitespace (except significant
// newlines, which the caller consumes as tokNewLine) and // / /* */
// comments.
func (p *Parser) skipSpaceAndComments() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			p.pos++
		case c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '/':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		case c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*':
			p.pos += 2
			for p.pos+1 < len(p.src) && !(p.src[p.pos] == '*' && p.src[p.pos+1] == '/') {
				p.pos++
			}
			p.pos += 2
			if p.pos > len(p.src) {
				p.pos = len(p.src)
			}
		default:
			return
		}
	}
}

func isPlainChar(c byte) bool {
	switch c {
	case '{', '}', '[', ']', ':', '=', ',', ';', '"', '\n':
		return false
	default:
		return c > ' '
	}
}

func (p *Parser) nextToken() (token, error) {
	p.skipSpaceAndComments()
	if p.pos >= len(p.src) {
		return token{kind: tokEOF, fileOfs: p.pos}, nil
	}
	start := p.pos
	c := p.src[p.pos]
	switch c {
	case '\n':
		p.pos++
		return token{kind: tokNewLine, fileOfs: start}, nil
	case '{':
		p.pos++
		return token{kind: tokOpenCurly, fileOfs: start}, nil
	case '}':
		p.pos++
		return token{kind: tokCloseCurly, fileOfs: start}, nil
	case '[':
		p.pos++
		return token{kind: tokOpenSquare, fileOfs: start}, nil
	case ']':
		p.pos++
		return token{kind: tokCloseSquare, fileOfs: start}, nil
	case ':':
		p.pos++
		return token{kind: tokColon, fileOfs: start}, nil
	case '=':
		p.pos++
		return token{kind: tokEquals, fileOfs: start}, nil
	case ',':
		p.pos++
		return token{kind: tokComma, fileOfs: start}, nil
	case ';':
		p.pos++
		return token{kind: tokSemicolon, fileOfs: start}, nil
	case '"':
		s, err := p.readQuotedString()
		if err != nil {
			return token{}, err
		}
		return token{kind: tokText, text: s, fileOfs: start}, nil
	default:
		s := p.readPlainToken()
		return token{kind: tokText, text: s, fileOfs: start}, nil
	}
}

func (p *Parser) readPlainToken() string {
	start := p.pos
	for p.pos < len(p.src) && isPlainChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *Parser) readQuotedString() (string, error) {
	p.pos++ // consume opening quote
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", p.fail("unterminated string literal")
		}
		c := p.src[p.pos]
		if c == '"' {
			p.pos++
			return b.String(), nil
		}
		if c == '\\' {
			p.pos++
			if p.pos >= len(p.src) {
				return "", p.fail("unterminated escape sequence")
			}
			esc := p.src[p.pos]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\', '/':
				b.WriteByte(esc)
			case 'x':
				if p.pos+2 >= len(p.src) {
					return "", p.fail("truncated \\x escape")
				}
				hi := hexVal(p.src[p.pos+1])
				lo := hexVal(p.src[p.pos+2])
				if hi < 0 || lo < 0 {
					return "", p.fail("invalid \\x escape")
				}
				b.WriteByte(byte(hi<<4 | lo))
				p.pos += 2
			default:
				return "", p.fail("unrecognized escape sequence '\\%c'", esc)
			}
			p.pos++
			continue
		}
		b.WriteByte(c)
		p.pos++
	}
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

// parseObjectBody parses key/value pairs until a closing '}' (or, for
// the top-level implicit object, EOF). Items may be separated by a
// comma, a semicolon, or a bare newline.
func (p *Parser) parseObjectBody(topLevel bool) (*Node, error) {
	obj := NewObjectNode()
	obj.FileOfs = p.pos
	for {
		savedPos := p.pos
		tok, err := p.nextToken()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokNewLine, tokComma, tokSemicolon:
			continue
		case tokEOF:
			if topLevel {
				return obj, nil
			}
			return nil, p.failAt(savedPos, "unexpected end of input inside object")
		case tokCloseCurly:
			if topLevel {
				return nil, p.failAt(savedPos, "unexpected '}' at top level")
			}
			return obj, nil
		case tokText:
			key := tok.text
			if obj.Has(key) {
				// Recorded in p.err and reported by Parse; the value
				// parsed below replaces the earlier one.
				p.pushScope("duplicate key", key)
				_ = p.failAt(tok.fileOfs, "duplicate key %q", key)
				p.popScope()
			}
			p.pushScope("property", key)
			value, err := p.parsePropertyValue()
			p.popScope()
			if err != nil {
				return nil, err
			}
			obj.Set(key, value)
		default:
			return nil, p.failAt(savedPos, "expected a property name, got %s", describeToken(tok))
		}
	}
}

// parsePropertyValue parses the `: value` or `= value` (or, for a
// bare nested object, no separator at all — `name { ... }`) half of
// one property.
func (p *Parser) parsePropertyValue() (*Node, error) {
	savedPos := p.pos
	tok, err := p.nextToken()
	if err != nil {
		return nil, err
	}
	switch tok.kind {
	case tokColon, tokEquals:
		return p.parseExpression()
	case tokOpenCurly:
		p.pushScope("object", "")
		n, err := p.parseObjectBody(false)
		p.popScope()
		return n, err
	default:
		// No separator: treat the upcoming token(s) as the start of a
		// value directly (e.g. `flags [ "x" ]`).
		p.pos = savedPos
		return p.parseExpression()
	}
}

func (p *Parser) parseExpression() (*Node, error) {
	p.skipSpaceAndComments()
	savedPos := p.pos
	tok, err := p.nextToken()
	if err != nil {
		return nil, err
	}
	switch tok.kind {
	case tokOpenCurly:
		p.pushScope("object", "")
		n, err := p.parseObjectBody(false)
		p.popScope()
		return n, err
	case tokOpenSquare:
		p.pushScope("array", "")
		n, err := p.parseArrayBody()
		p.popScope()
		return n, err
	case tokText:
		return Text(tok.text), nil
	default:
		p.pos = savedPos
		return nil, p.fail("expected a value, got %s", describeToken(tok))
	}
}

func (p *Parser) parseArrayBody() (*Node, error) {
	arr := Array()
	arr.FileOfs = p.pos
	for {
		savedPos := p.pos
		tok, err := p.nextToken()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokNewLine, tokComma:
			continue
		case tokCloseSquare:
			return arr, nil
		case tokEOF:
			return nil, p.failAt(savedPos, "unexpected end of input inside array")
		default:
			p.pos = savedPos
			elem, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			arr.Append(elem)
		}
	}
}

func (p *Parser) failAt(offset int, format string, args ...interface{}) error {
	saved := p.pos
	p.pos = offset
	err := p.fail(format, args...)
	p.pos = saved
	return err
}

func describeToken(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewLine:
		return "newline"
	case tokText:
		return fmt.Sprintf("%q", t.text)
	case tokOpenCurly:
		return "'{'"
	case tokCloseCurly:
		return "'}'"
	case tokOpenSquare:
		return "'['"
	case tokCloseSquare:
		return "']'"
	case tokColon:
		return "':'"
	case tokEquals:
		return "'='"
	case tokComma:
		return "','"
	case tokSemicolon:
		return "';'"
	default:
		return "token"
	}
}
