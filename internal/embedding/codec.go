// Package embedding provides the on-disk embedding cache, the cosine
// similarity primitives and the bounded embedder pool used by the
// deduplication engine.
package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MarshalVector encodes a vector as a little-endian uint32 dimension header
// followed by the float32 values. The same encoding is used for cache files
// and for persisted embeddings.
func MarshalVector(vec []float32) []byte {
	buf := make([]byte, 4+4*len(vec))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(v))
	}
	return buf
}

// UnmarshalVector decodes a MarshalVector payload. Truncated or
// inconsistent input is an error, never a partial vector.
func UnmarshalVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("vector payload too short: %d bytes", len(data))
	}
	dim := binary.LittleEndian.Uint32(data[0:4])
	want := 4 + 4*int(dim)
	if len(data) != want {
		return nil, fmt.Errorf("vector payload size mismatch: dim %d wants %d bytes, have %d", dim, want, len(data))
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*i:]))
	}
	return vec, nil
}
