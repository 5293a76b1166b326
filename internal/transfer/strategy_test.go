package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const chunkSize = 5 * 1024 * 1024

func TestSelect(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want Strategy
	}{
		{"zero length", 0, SinglePart},
		{"one byte", 1, SinglePart},
		{"just under threshold", chunkSize - 1, SinglePart},
		{"exactly threshold", chunkSize, Chunked},
		{"just over threshold", chunkSize + 1, Chunked},
		{"many chunks", 10 * chunkSize, Chunked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Select(tt.size, chunkSize))
		})
	}
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "single", SinglePart.String())
	assert.Equal(t, "chunked", Chunked.String())
}
