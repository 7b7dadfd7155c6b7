package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Packet{
		ShutInfo: ShutRD,
		Name:     []byte("\x00abstract-peer"),
		Cmsg:     []byte{1, 2, 3, 4},
		Data:     []byte("hello"),
	}
	buf, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(buf) != HeaderLen+len(p.Name)+len(p.Cmsg)+len(p.Data) {
		t.Fatalf("Encode produced %d bytes, want %d", len(buf), HeaderLen+len(p.Name)+len(p.Cmsg)+len(p.Data))
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ShutInfo != p.ShutInfo {
		t.Errorf("ShutInfo = %v, want %v", got.ShutInfo, p.ShutInfo)
	}
	if !bytes.Equal(got.Name, p.Name) {
		t.Errorf("Name = %q, want %q", got.Name, p.Name)
	}
	if !bytes.Equal(got.Cmsg, p.Cmsg) {
		t.Errorf("Cmsg = %v, want %v", got.Cmsg, p.Cmsg)
	}
	if !bytes.Equal(got.Data, p.Data) {
		t.Errorf("Data = %q, want %q", got.Data, p.Data)
	}
}

func TestAnnouncementIsZeroPayload(t *testing.T) {
	p := Announcement([]byte("\x00foo"))
	if len(p.Cmsg) != 0 || len(p.Data) != 0 {
		t.Fatalf("Announcement should carry no cmsg or data, got cmsg=%v data=%v", p.Cmsg, p.Data)
	}
	if p.ShutInfo != 0 {
		t.Fatalf("Announcement shut_info = %v, want 0", p.ShutInfo)
	}
	buf, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(back.Name, []byte("\x00foo")) {
		t.Fatalf("Name round-trip = %q", back.Name)
	}
}

func TestAnnouncementWithUnboundPeerIsZeroLengthName(t *testing.T) {
	p := Announcement(nil)
	buf, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.NameLen != 0 {
		t.Fatalf("NameLen = %d, want 0 for an unbound peer's announcement", h.NameLen)
	}
}

func TestDecodeHeaderRejectsLengthMismatch(t *testing.T) {
	buf := make([]byte, HeaderLen)
	buf[0], buf[1] = 100, 0 // pckt_len = 100, but no body follows
	if _, err := DecodeHeader(buf); err == nil {
		t.Fatal("DecodeHeader should reject a pckt_len that does not match declared section lengths")
	}
}

func TestEncodeRejectsOversizePacket(t *testing.T) {
	p := Packet{Data: make([]byte, MaxPacket)}
	if _, err := Encode(p); err == nil {
		t.Fatal("Encode should reject a packet whose total size exceeds the 64KiB cap")
	}
}

func TestPrependSunPathCarriesSenderAddress(t *testing.T) {
	p := PrependSunPath([]byte("\x00sender"), []byte("payload"))
	if !bytes.Equal(p.Name, []byte("\x00sender")) {
		t.Fatalf("Name = %q, want sender address", p.Name)
	}
	if !bytes.Equal(p.Data, []byte("payload")) {
		t.Fatalf("Data = %q, want payload", p.Data)
	}
}
