// Package types holds the wire-level data model shared by every manager:
// the sensor reading tuple and its fixed binary layout.
package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RecordSize is the number of bytes one sensor sends per reading:
// 2 bytes sensor id, 8 bytes IEEE-754 value, 8 bytes Unix timestamp.
const RecordSize = 2 + 8 + 8

// SensorReading is one (sensor_id, value, timestamp) tuple as produced by a
// remote sensor node. It is immutable once constructed.
type SensorReading struct {
	SensorID  uint16
	Value     float64
	Timestamp int64 // seconds since epoch
}

// DecodeReading parses one wire record out of buf. buf must hold at least
// RecordSize bytes; any trailing bytes are ignored by the caller.
//
// Fields are host-byte-order, matching the sensor firmware's raw struct
// layout rather than a portable fixed-endian encoding. This mirrors the
// original C gateway's reliance on native struct packing and is a known
// portability hazard: a gateway and sensor fleet running on CPUs with
// different endianness will not interoperate.
func DecodeReading(buf []byte) (SensorReading, error) {
	if len(buf) < RecordSize {
		return SensorReading{}, fmt.Errorf("types: short record: %d bytes, want %d", len(buf), RecordSize)
	}
	id := binary.NativeEndian.Uint16(buf[0:2])
	rawValue := binary.NativeEndian.Uint64(buf[2:10])
	rawTS := binary.NativeEndian.Uint64(buf[10:18])
	return SensorReading{
		SensorID:  id,
		Value:     math.Float64frombits(rawValue),
		Timestamp: int64(rawTS),
	}, nil
}

// EncodeReading writes a reading back into wire form, host byte order. Used
// by tests and by any tooling that needs to synthesize sensor traffic.
func EncodeReading(r SensorReading) []byte {
	buf := make([]byte, RecordSize)
	binary.NativeEndian.PutUint16(buf[0:2], r.SensorID)
	binary.NativeEndian.PutUint64(buf[2:10], math.Float64bits(r.Value))
	binary.NativeEndian.PutUint64(buf[10:18], uint64(r.Timestamp))
	return buf
}
