// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
UDP Packet Structure (BigEndian)

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |     Value     |         Values          |
|      (uint32)     |  (int64, Unix nanos)  |     Count     |      (N * float32)      |
|                   |                       |    (uint16)   |  peak buckets, oldest   |
|                   |                       |               |       first             |
+-------------------+-----------------------+---------------+-------------------------+
*/
const (
	HeaderSize = 4 + 8 + 2

	// MaxValues keeps a packet within the largest IPv4 UDP payload.
	MaxValues = (65507 - HeaderSize) / 4
)

// ErrShortPacket is returned when a packet is smaller than its header says.
var ErrShortPacket = errors.New("short peak packet")

// Packet is a decoded peak packet.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Values    []float32
}

// AppendPacket encodes one packet onto dst and returns the extended slice.
// At most MaxValues values are written.
func AppendPacket(dst []byte, seq uint32, timestamp int64, values []float32) []byte {
	values = values[:min(len(values), MaxValues)]
	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(values)))
	for _, v := range values {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// DecodePacket parses b. The returned values do not alias b.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	p := Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	body := b[HeaderSize:]
	if len(body) < 4*n {
		return Packet{}, fmt.Errorf("%w: header announces %d values, body holds %d bytes", ErrShortPacket, n, len(body))
	}
	p.Values = make([]float32, n)
	for i := range p.Values {
		p.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(body[4*i:]))
	}
	return p, nil
}
