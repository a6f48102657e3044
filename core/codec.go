package core

import "encoding/binary"

// EncodeBlock lays payload words out as little-endian uint32 values.
func EncodeBlock(words []uint32) []byte {
	buf := make([]byte, 0, 4*len(words))
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	return buf
}
