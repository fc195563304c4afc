// services/houseblocks/avr1/parser.go
package avr1

import (
	"fmt"

	"github.com/pkg/errors"

	"homectl-go/services/houseblocks"
)

// ErrPrematureEnd reports a field read past the end of the payload.
var ErrPrematureEnd = errors.New("premature data end")

// ErrTrailingData reports unparsed bytes at logical end of payload.
var ErrTrailingData = errors.New("trailing data")

// InvalidByteError reports an unexpected character for the decoded type.
type InvalidByteError struct {
	Expected string
	Got      byte
}

func (e *InvalidByteError) Error() string {
	return fmt.Sprintf("invalid byte: expected %s, got %q", e.Expected, e.Got)
}

// Parser is a cursor over a payload that pulls typed fields.
type Parser struct {
	data []byte
	pos  int
}

func NewParser(payload houseblocks.Payload) *Parser {
	return &Parser{data: payload}
}

// GetByte returns the next byte, or false at end.
func (p *Parser) GetByte() (byte, bool) {
	if p.pos >= len(p.data) {
		return 0, false
	}
	b := p.data[p.pos]
	p.pos++
	return b, true
}

func (p *Parser) ExpectByte() (byte, error) {
	b, ok := p.GetByte()
	if !ok {
		return 0, ErrPrematureEnd
	}
	return b, nil
}

func (p *Parser) ExpectBool() (bool, error) {
	b, err := p.ExpectByte()
	if err != nil {
		return false, err
	}
	switch b {
	case '0':
		return false, nil
	case '1':
		return true, nil
	default:
		return false, &InvalidByteError{Expected: "bool", Got: b}
	}
}

func (p *Parser) ExpectU8() (uint8, error) {
	hi, err := p.expectHexNibble()
	if err != nil {
		return 0, err
	}
	lo, err := p.expectHexNibble()
	if err != nil {
		return 0, err
	}
	return hi<<4 | lo, nil
}

func (p *Parser) ExpectU16() (uint16, error) {
	hi, err := p.ExpectU8()
	if err != nil {
		return 0, err
	}
	lo, err := p.ExpectU8()
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

func (p *Parser) ExpectBoolArray8() ([8]bool, error) {
	var values [8]bool
	bits, err := p.ExpectU8()
	if err != nil {
		return values, err
	}
	for index := range values {
		values[index] = bits&(1<<index) != 0
	}
	return values, nil
}

func (p *Parser) ExpectBoolArray16() ([16]bool, error) {
	var values [16]bool
	bits, err := p.ExpectU16()
	if err != nil {
		return values, err
	}
	for index := range values {
		values[index] = bits&(1<<index) != 0
	}
	return values, nil
}

// ExpectEnd fails if any bytes remain.
func (p *Parser) ExpectEnd() error {
	if p.pos != len(p.data) {
		return ErrTrailingData
	}
	return nil
}

func (p *Parser) expectHexNibble() (uint8, error) {
	b, err := p.ExpectByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, nil
	default:
		return 0, &InvalidByteError{Expected: "hex digit", Got: b}
	}
}
