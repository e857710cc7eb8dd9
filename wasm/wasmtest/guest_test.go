package wasmtest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildHeader(t *testing.T) {
	image := Guest{}.Build()
	assert.True(t, bytes.HasPrefix(image, []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}))
}

func TestBuildOmitsExports(t *testing.T) {
	full := Guest{}.Build()
	assert.True(t, bytes.Contains(full, []byte("detect_xss")))

	trimmed := Guest{Omit: []string{"detect_xss"}}.Build()
	assert.False(t, bytes.Contains(trimmed, []byte("detect_xss")))
	assert.Less(t, len(trimmed), len(full))
}

func TestLEB128(t *testing.T) {
	assert.Equal(t, []byte{0x00}, uleb(nil, 0))
	assert.Equal(t, []byte{0xE5, 0x8E, 0x26}, uleb(nil, 624485))
	assert.Equal(t, []byte{0x7F}, sleb(nil, -1))
	assert.Equal(t, []byte{0xFF, 0x00}, sleb(nil, 127))
	assert.Equal(t, []byte{0xC0, 0xBB, 0x78}, sleb(nil, -123456))
	assert.Equal(t, []byte{0xFF, 0xFF, 0x03}, sleb(nil, 65535))
}
