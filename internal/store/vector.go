//go:build cgo

package store

import (
	"encoding/binary"
	"math"
	"sort"

	brokerrors "deskbroker/internal/shared/errors"
)

// deserializeFloat32 reverses vec.SerializeFloat32's little-endian
// float32 layout, since sqlite-vec-go-bindings does not itself expose a
// deserializer.
func deserializeFloat32(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, brokerrors.New(brokerrors.KindInternal, "malformed embedding blob")
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// cosineDistance returns 1 - cosine_similarity(a, b), so 0 means
// identical direction and larger means more dissimilar. Mismatched
// lengths are treated as maximally distant rather than panicking.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat64
	}
	var dot, normA, normB float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}
	if normA == 0 || normB == 0 {
		return math.MaxFloat64
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - similarity
}

func sortByDistance(candidates []ClusterCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
}
