package index

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// buildHashFields converts a record into a flat map[string]string for HSET.
func buildHashFields(rec *domain.Record) map[string]string {
	return map[string]string{
		fieldText:      rec.Metadata.ChunkText,
		fieldChunkID:   strconv.Itoa(rec.Metadata.ChunkID),
		fieldCharCount: strconv.Itoa(rec.Metadata.CharCount),
		fieldSource:    rec.Metadata.Source,
		fieldVector:    vectorToBytes(rec.Vector),
	}
}

// parseHashFields converts a flat hash map back into a record. Malformed numbers read as 0.
func parseHashFields(id string, m map[string]string) domain.Record {
	chunkID, _ := strconv.Atoi(m[fieldChunkID])
	charCount, _ := strconv.Atoi(m[fieldCharCount])
	return domain.Record{
		ID:     id,
		Vector: bytesToVector(m[fieldVector]),
		Metadata: domain.Metadata{
			ChunkText: m[fieldText],
			ChunkID:   chunkID,
			CharCount: charCount,
			Source:    m[fieldSource],
		},
	}
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
