// Package payload generates the request bodies sent by the driver.
package payload

import "math/rand"

// Random fills Size words from a generator seeded with the iteration seed,
// so the same seed always yields the same block.
type Random struct {
	Size int
	// Modulus bounds every value to [0, Modulus). Zero means the full
	// uint32 range.
	Modulus uint32
}

// NewRandom returns a Random generator.
func NewRandom(size int, modulus uint32) *Random {
	return &Random{Size: size, Modulus: modulus}
}

func (g *Random) Generate(seed uint32) []uint32 {
	r := rand.New(rand.NewSource(int64(seed)))
	out := make([]uint32, g.Size)
	for i := range out {
		if g.Modulus == 0 {
			out[i] = r.Uint32()
			continue
		}
		out[i] = uint32(r.Int63n(int64(g.Modulus)))
	}
	return out
}
