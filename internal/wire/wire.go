// Package wire implements the on-wire packet framing described in
// spec.md §4.5: the fixed 8-byte header and the offsets of the name, cmsg,
// and payload sections that follow it. All fields are host-endian, since
// this transport never leaves the host.
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the size, in bytes, of the fixed packet header.
const HeaderLen = 8

// MaxPacket is the largest total packet size (header included) the
// transport will carry, per spec.md §4.5.
const MaxPacket = 1<<16 - 1

// ShutInfo bits, carried in the header's shut_info byte.
type ShutInfo uint8

const (
	ShutRD    ShutInfo = 1 << 0
	ShutWR    ShutInfo = 1 << 1
	ShutRDWR           = ShutRD | ShutWR
)

// Packet is the decoded form of one wire packet.
type Packet struct {
	ShutInfo ShutInfo
	Name     []byte // raw sockaddr_un bytes, NameLen of them
	Cmsg     []byte // ancillary data block
	Data     []byte // user payload
}

// Encode serializes p into the wire format. It fails if the total size,
// including the header, would not fit in a uint16 (spec.md §4.5: "must fit
// in 64 KiB").
func Encode(p Packet) ([]byte, error) {
	total := HeaderLen + len(p.Name) + len(p.Cmsg) + len(p.Data)
	if total > MaxPacket {
		return nil, fmt.Errorf("wire: packet of %d bytes exceeds %d-byte limit", total, MaxPacket)
	}
	if len(p.Name) > 0xff {
		return nil, fmt.Errorf("wire: name_len %d exceeds 255", len(p.Name))
	}
	if len(p.Cmsg) > 0xffff {
		return nil, fmt.Errorf("wire: cmsg_len %d exceeds 65535", len(p.Cmsg))
	}
	if len(p.Data) > 0xffff {
		return nil, fmt.Errorf("wire: data_len %d exceeds 65535", len(p.Data))
	}

	buf := make([]byte, total)
	binary.NativeEndian.PutUint16(buf[0:2], uint16(total))
	buf[2] = byte(p.ShutInfo)
	buf[3] = byte(len(p.Name))
	binary.NativeEndian.PutUint16(buf[4:6], uint16(len(p.Cmsg)))
	binary.NativeEndian.PutUint16(buf[6:8], uint16(len(p.Data)))

	off := HeaderLen
	off += copy(buf[off:], p.Name)
	off += copy(buf[off:], p.Cmsg)
	copy(buf[off:], p.Data)

	return buf, nil
}

// Header is the decoded fixed header, used to size the read of the
// variable-length remainder before the rest of the packet has arrived.
type Header struct {
	PcktLen  uint16
	ShutInfo ShutInfo
	NameLen  uint8
	CmsgLen  uint16
	DataLen  uint16
}

// DecodeHeader parses the fixed 8-byte header from buf, which must be at
// least HeaderLen bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, fmt.Errorf("wire: header needs %d bytes, got %d", HeaderLen, len(buf))
	}
	h := Header{
		PcktLen:  binary.NativeEndian.Uint16(buf[0:2]),
		ShutInfo: ShutInfo(buf[2]),
		NameLen:  buf[3],
		CmsgLen:  binary.NativeEndian.Uint16(buf[4:6]),
		DataLen:  binary.NativeEndian.Uint16(buf[6:8]),
	}
	want := HeaderLen + int(h.NameLen) + int(h.CmsgLen) + int(h.DataLen)
	if int(h.PcktLen) != want {
		return Header{}, fmt.Errorf("wire: pckt_len %d does not match section lengths (want %d)", h.PcktLen, want)
	}
	return h, nil
}

// RemainderLen is the number of bytes that follow the fixed header, i.e.
// the name+cmsg+data sections combined.
func (h Header) RemainderLen() int {
	return int(h.NameLen) + int(h.CmsgLen) + int(h.DataLen)
}

// DecodeBody splits the bytes following the header (exactly
// h.RemainderLen() of them) into their three sections.
func DecodeBody(h Header, body []byte) (Packet, error) {
	if len(body) != h.RemainderLen() {
		return Packet{}, fmt.Errorf("wire: body is %d bytes, want %d", len(body), h.RemainderLen())
	}
	p := Packet{ShutInfo: h.ShutInfo}
	off := 0
	p.Name = append([]byte(nil), body[off:off+int(h.NameLen)]...)
	off += int(h.NameLen)
	p.Cmsg = append([]byte(nil), body[off:off+int(h.CmsgLen)]...)
	off += int(h.CmsgLen)
	p.Data = append([]byte(nil), body[off:off+int(h.DataLen)]...)
	return p, nil
}

// Decode parses a complete packet (header and body together) in one call,
// for transports that deliver whole messages at a time, such as a
// message-mode, message-read named pipe where a single ReadFile already
// returns one full write.
func Decode(buf []byte) (Packet, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Packet{}, err
	}
	if len(buf) != int(h.PcktLen) {
		return Packet{}, fmt.Errorf("wire: buffer is %d bytes, header declares %d", len(buf), h.PcktLen)
	}
	return DecodeBody(h, buf[HeaderLen:])
}

// Announcement builds the fire-and-forget peer-name announcement packet
// described in spec.md §4.5: name_len set to the local address, cmsg_len
// and data_len both zero.
func Announcement(localSunPath []byte) Packet {
	return Packet{Name: append([]byte(nil), localSunPath...)}
}

// PrependSunPath implements the "datagram bound send" rule from spec.md
// §4.5: a bound datagram socket prepends its own sun_path to every
// outgoing packet so the receiver's recvfrom can fill the from address.
func PrependSunPath(localSunPath []byte, data []byte) Packet {
	return Packet{Name: append([]byte(nil), localSunPath...), Data: append([]byte(nil), data...)}
}
