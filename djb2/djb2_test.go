package djb2

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashFixtures(t *testing.T) {
	assert.Equal(t, uint32(0xBD025672), Hash("m50_50"))
	assert.Equal(t, int32(-1123920270), int32(Hash("m50_50")))
	assert.Equal(t, uint32(1258058669), Hash("huffman"))
}

func TestHashEmpty(t *testing.T) {
	assert.Equal(t, uint32(0), Hash(""))
}
