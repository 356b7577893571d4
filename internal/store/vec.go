package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// encodeVector packs v as little-endian float32, the layout sqlite-vec
// reads from BLOB arguments.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d not multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// detectVec probes for the sqlite-vec scalar functions.
func detectVec(db *sql.DB) bool {
	var version string
	if err := db.QueryRow(`SELECT vec_version()`).Scan(&version); err != nil {
		return false
	}
	return version != ""
}
