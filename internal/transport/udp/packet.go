// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Flags             | uint8          | 1            | bit0 listening, bit1 idle|
| Low, Mid, High    | 3 x float32    | 12           | Band values, 0-100      |
+-----------------------------------------------------------------------------+
*/

// PacketSize is the length of every state packet.
const PacketSize = 4 + 8 + 1 + 3*4

const (
	flagListening uint8 = 1 << iota
	flagIdle
)

// Packet is the decoded form of a state datagram.
type Packet struct {
	Seq       uint32
	Timestamp time.Time
	Listening bool
	Idle      bool
	Low       float32
	Mid       float32
	High      float32
}

// AppendPacket appends the wire form of p to dst.
func AppendPacket(dst []byte, p Packet) []byte {
	var flags uint8
	if p.Listening {
		flags |= flagListening
	}
	if p.Idle {
		flags |= flagIdle
	}

	dst = binary.BigEndian.AppendUint32(dst, p.Seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(p.Timestamp.UnixNano()))
	dst = append(dst, flags)
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(p.Low))
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(p.Mid))
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(p.High))
	return dst
}

// DecodePacket parses a state datagram.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) != PacketSize {
		return Packet{}, fmt.Errorf("udp: packet is %d bytes, want %d", len(b), PacketSize)
	}

	flags := b[12]
	return Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(b[4:12]))),
		Listening: flags&flagListening != 0,
		Idle:      flags&flagIdle != 0,
		Low:       math.Float32frombits(binary.BigEndian.Uint32(b[13:17])),
		Mid:       math.Float32frombits(binary.BigEndian.Uint32(b[17:21])),
		High:      math.Float32frombits(binary.BigEndian.Uint32(b[21:25])),
	}, nil
}
