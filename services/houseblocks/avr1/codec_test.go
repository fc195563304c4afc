package avr1

import (
	"errors"
	"testing"

	"homectl-go/services/houseblocks"
)

func payloadOf(t *testing.T, s *Serializer) houseblocks.Payload {
	t.Helper()
	payload, err := s.IntoPayload()
	if err != nil {
		t.Fatalf("into payload: %v", err)
	}
	return payload
}

func TestSerializerVectors(t *testing.T) {
	cases := []struct {
		name  string
		build func(s *Serializer)
		want  string
	}{
		{"empty", func(s *Serializer) {}, ""},
		{"bytes", func(s *Serializer) { s.PushByte('A'); s.PushByte('B') }, "AB"},
		{"bools", func(s *Serializer) {
			for _, b := range []bool{true, false, false, true, true, true, false, true, false} {
				s.PushBool(b)
			}
		}, "100111010"},
		{"u8", func(s *Serializer) {
			for _, v := range []uint8{0, 255, 0xAA, 0x12, 0x34, 0x45, 0xEE} {
				s.PushU8(v)
			}
		}, "00FFAA123445EE"},
		{"u16", func(s *Serializer) {
			for _, v := range []uint16{0x0000, 0xFFFF, 0x1234, 0xEDCB} {
				s.PushU16(v)
			}
		}, "0000FFFF1234EDCB"},
		{"bool array 8", func(s *Serializer) {
			s.PushBoolArray8([8]bool{true, true, false, false, false, true, false, true})
		}, "A3"},
		{"bool array 16", func(s *Serializer) {
			s.PushBoolArray16([16]bool{
				false, true, false, false, false, false, true, true,
				false, false, false, false, false, false, false, true,
			})
		}, "80C2"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := NewSerializer()
			c.build(s)
			if got := payloadOf(t, s).String(); got != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestParserRoundTrip(t *testing.T) {
	s := NewSerializer()
	s.PushByte('H')
	s.PushBool(true)
	s.PushU8(0x7F)
	s.PushU16(0x1234)
	s.PushBoolArray8([8]bool{true, true, false, false, false, true, false, true})
	s.PushBoolArray16([16]bool{
		false, true, false, false, false, false, true, true,
		false, false, false, false, false, false, false, true,
	})

	p := NewParser(payloadOf(t, s))

	if b, err := p.ExpectByte(); err != nil || b != 'H' {
		t.Fatalf("byte: %v %q", err, b)
	}
	if v, err := p.ExpectBool(); err != nil || v != true {
		t.Fatalf("bool: %v %v", err, v)
	}
	if v, err := p.ExpectU8(); err != nil || v != 0x7F {
		t.Fatalf("u8: %v %02X", err, v)
	}
	if v, err := p.ExpectU16(); err != nil || v != 0x1234 {
		t.Fatalf("u16: %v %04X", err, v)
	}
	if v, err := p.ExpectBoolArray8(); err != nil ||
		v != [8]bool{true, true, false, false, false, true, false, true} {
		t.Fatalf("bool array 8: %v %v", err, v)
	}
	if v, err := p.ExpectBoolArray16(); err != nil ||
		v != [16]bool{
			false, true, false, false, false, false, true, true,
			false, false, false, false, false, false, false, true,
		} {
		t.Fatalf("bool array 16: %v %v", err, v)
	}
	if err := p.ExpectEnd(); err != nil {
		t.Fatalf("expect end: %v", err)
	}
}

func TestParserErrors(t *testing.T) {
	p := NewParser(houseblocks.Payload(""))
	if _, err := p.ExpectByte(); !errors.Is(err, ErrPrematureEnd) {
		t.Fatalf("want premature end, got %v", err)
	}

	p = NewParser(houseblocks.Payload("G0"))
	var invalid *InvalidByteError
	if _, err := p.ExpectU8(); !errors.As(err, &invalid) {
		t.Fatalf("want invalid byte, got %v", err)
	} else if invalid.Got != 'G' {
		t.Fatalf("invalid byte got %q", invalid.Got)
	}

	p = NewParser(houseblocks.Payload("2"))
	if _, err := p.ExpectBool(); err == nil {
		t.Fatal("bool '2' accepted")
	}

	p = NewParser(houseblocks.Payload("0"))
	if _, err := p.ExpectU8(); !errors.Is(err, ErrPrematureEnd) {
		t.Fatalf("half u8: want premature end, got %v", err)
	}

	p = NewParser(houseblocks.Payload("AZ"))
	if err := p.ExpectEnd(); !errors.Is(err, ErrTrailingData) {
		t.Fatalf("want trailing data, got %v", err)
	}
	if _, err := p.ExpectByte(); err != nil {
		t.Fatalf("byte: %v", err)
	}
	if _, err := p.ExpectByte(); err != nil {
		t.Fatalf("byte: %v", err)
	}
	if err := p.ExpectEnd(); err != nil {
		t.Fatalf("expect end after consume: %v", err)
	}
}
