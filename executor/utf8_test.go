package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUTF8Range(t *testing.T) {
	tests := []struct {
		name      string
		in        []byte
		lo, hi    int
		remaining string
	}{
		{"empty", nil, 0, 0, ""},
		{"ascii", []byte("hello"), 0, 5, "hello"},
		{"leading continuation", []byte{0xA9, 'a', 'b'}, 1, 3, "ab"},
		{"two leading continuations", []byte{0x82, 0xAC, 'c'}, 2, 3, "c"},
		{"truncated euro at end", []byte{'a', 'b', 0xE2, 0x82}, 0, 2, "ab"},
		{"truncated lead only", []byte{'a', 0xC3}, 0, 1, "a"},
		{"complete euro at end", []byte("a€"), 0, 4, "a€"},
		{"complete four byte rune", []byte("x😀"), 0, 5, "x😀"},
		{"truncated four byte rune", []byte{'x', 0xF0, 0x9F, 0x98}, 0, 1, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := utf8Range(tt.in)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
			assert.Equal(t, tt.remaining, string(tt.in[lo:hi]))
		})
	}
}

func TestUTF8RangeGivesUpOnGarbagePrefix(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 'z'}
	lo, hi := utf8Range(buf)
	assert.Equal(t, 0, lo)
	assert.Equal(t, len(buf), hi)
}
