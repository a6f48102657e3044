package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandom_Deterministic(t *testing.T) {
	g := NewRandom(64, 100000)
	a, b := g.Generate(1), g.Generate(1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, g.Generate(2))
}

func TestRandom_Bounds(t *testing.T) {
	g := NewRandom(1024, 10)
	block := g.Generate(7)
	assert.Len(t, block, 1024)
	for _, v := range block {
		assert.Less(t, v, uint32(10))
	}
}

func TestRandom_FullRange(t *testing.T) {
	block := NewRandom(16, 0).Generate(3)
	assert.Len(t, block, 16)
	assert.Empty(t, NewRandom(0, 10).Generate(3))
}
