// interfaces/modbusrtu/helpers.go
package modbusrtu

import "github.com/pkg/errors"

// BitsArrayToByte packs 8 bools LSB-first.
func BitsArrayToByte(bits [8]bool) uint8 {
	var value uint8
	for index, bit := range bits {
		if bit {
			value |= 1 << index
		}
	}
	return value
}

// BitsByteToArray unpacks one byte LSB-first.
func BitsByteToArray(value uint8) [8]bool {
	var bits [8]bool
	for index := range bits {
		bits[index] = value&(1<<index) != 0
	}
	return bits
}

// BitsByteToArrayChecked additionally requires that only the low max bits are
// set: any bit at index max or higher is rejected.
func BitsByteToArrayChecked(value uint8, max int) ([8]bool, error) {
	bits := BitsByteToArray(value)
	for index := max; index < 8; index++ {
		if bits[index] {
			return bits, errors.Errorf("bit %d overflows width %d", index, max)
		}
	}
	return bits, nil
}

// BitsSliceToBytes packs an arbitrary bool slice into bytes, padding the
// last byte with false.
func BitsSliceToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for index, bit := range bits {
		if bit {
			out[index/8] |= 1 << (index % 8)
		}
	}
	return out
}

// BitsBytesToSlice is the inverse of BitsSliceToBytes; the result length is
// a multiple of 8.
func BitsBytesToSlice(data []byte) []bool {
	out := make([]bool, len(data)*8)
	for index := range out {
		out[index] = data[index/8]&(1<<(index%8)) != 0
	}
	return out
}

// BitsBytesToSliceChecked truncates to count bits, requiring the padding to
// be all false.
func BitsBytesToSliceChecked(data []byte, count int) ([]bool, error) {
	bits := BitsBytesToSlice(data)
	if count > len(bits) {
		return nil, errors.Errorf("want %d bits, have %d", count, len(bits))
	}
	for index := count; index < len(bits); index++ {
		if bits[index] {
			return nil, errors.Errorf("bit %d overflows width %d", index, count)
		}
	}
	return bits[:count], nil
}
