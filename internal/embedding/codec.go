package embedding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when a vector's width does not match the
// expected model dimension. It fails the current call only.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Encode packs a vector as a little-endian sequence of IEEE 754 float32
// values with no length prefix. Decoding requires the dimension from model
// metadata; the blob itself does not carry it.
func Encode(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// Decode unpacks a blob produced by Encode into a vector of the given
// dimension. A blob of any other width yields ErrDimensionMismatch.
func Decode(b []byte, dim int) ([]float32, error) {
	if len(b) != dim*4 {
		return nil, fmt.Errorf("blob is %d bytes, expected %d for dimension %d: %w", len(b), dim*4, dim, ErrDimensionMismatch)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

// CosineSimilarity computes dot(a,b)/(|a||b|) over two equal-length vectors.
// A zero-magnitude vector on either side scores 0.0 rather than NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
