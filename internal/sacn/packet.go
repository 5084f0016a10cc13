package sacn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Vectors and markers from ANSI E1.31.
const (
	PreambleSize  = 0x0010
	PostambleSize = 0x0000

	VectorRootData     = 0x00000004
	VectorRootExtended = 0x00000008

	VectorFramingData      = 0x00000002
	VectorExtendedSync     = 0x00000001
	VectorExtendedDiscover = 0x00000002

	VectorDMPSetProperty = 0x02
	AddressDataType      = 0xA1

	MaxPriority     = 200
	DefaultPriority = 100
)

// Option bits at offset 112.
const (
	OptionPreview    = 0x80
	OptionTerminated = 0x40
	OptionForceSync  = 0x20
)

// Byte offsets into a data packet.
const (
	offRootLength    = 16
	offRootVector    = 18
	offCID           = 22
	offFramingLength = 38
	offFramingVector = 40
	offSourceName    = 44
	offPriority      = 108
	offSyncAddress   = 109
	offSequence      = 111
	offOptions       = 112
	offUniverse      = 113
	offDMPLength     = 115
	offDMPVector     = 117
	offAddrType      = 118
	offFirstAddr     = 119
	offAddrIncrement = 121
	offPropCount     = 123
	offStartCode     = 125
	offData          = 126

	rootHeaderLen  = 22
	syncPacketLen  = 49
	sourceNameLen  = 64
	HeaderLen      = offData
	MaxPacketLen   = HeaderLen + Slots
	flagsMask      = 0xF000
	flagsPDU       = 0x7000
	lengthMask     = 0x0FFF
	cidLen         = 16
	minDiscoverLen = 120
)

// ACNPacketIdentifier is the 12 byte root layer identifier "ASC-E1.17\0\0\0".
var ACNPacketIdentifier = [12]byte{0x41, 0x53, 0x43, 0x2d, 0x45, 0x31, 0x2e, 0x31, 0x37, 0x00, 0x00, 0x00}

// Kind classifies a parsed datagram.
type Kind uint8

const (
	KindData Kind = iota
	KindSync
	KindDiscovery
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindSync:
		return "SYNC"
	case KindDiscovery:
		return "DISCOVERY"
	default:
		return "UNKNOWN"
	}
}

// Packet is one E1.31 datagram. For sync and discovery packets only Kind, CID,
// Sequence and SyncAddress are filled.
type Packet struct {
	Kind        Kind
	CID         uuid.UUID
	SourceName  string
	Priority    uint8
	SyncAddress uint16
	Sequence    uint8
	Options     uint8
	Universe    uint16
	StartCode   uint8

	// Data aliases the parsed buffer. Copy it before the buffer is reused.
	Data []byte
}

func (p *Packet) Preview() bool    { return p.Options&OptionPreview != 0 }
func (p *Packet) Terminated() bool { return p.Options&OptionTerminated != 0 }
func (p *Packet) ForceSync() bool  { return p.Options&OptionForceSync != 0 }

// ErrDataTooLong is returned when encoding more than 512 slots.
var ErrDataTooLong = errors.New("sacn: more than 512 slots")

// Parse validates a datagram and decodes it. Any structural problem yields a
// *ParseError.
func Parse(b []byte) (*Packet, error) {
	if len(b) < rootHeaderLen {
		return nil, parseErr("truncated root layer", len(b))
	}
	if binary.BigEndian.Uint16(b[0:2]) != PreambleSize {
		return nil, parseErr("invalid preamble size", 0)
	}
	if binary.BigEndian.Uint16(b[2:4]) != PostambleSize {
		return nil, parseErr("invalid postamble size", 2)
	}
	if !bytes.Equal(b[4:16], ACNPacketIdentifier[:]) {
		return nil, parseErr("invalid ACN packet identifier", 4)
	}
	if err := checkPDU(b, offRootLength); err != nil {
		return nil, err
	}

	switch binary.BigEndian.Uint32(b[offRootVector : offRootVector+4]) {
	case VectorRootData:
		return parseData(b)
	case VectorRootExtended:
		return parseExtended(b)
	default:
		return nil, parseErr("unknown root vector", offRootVector)
	}
}

func parseData(b []byte) (*Packet, error) {
	if len(b) < HeaderLen {
		return nil, parseErr("truncated data packet", len(b))
	}
	if err := checkPDU(b, offFramingLength); err != nil {
		return nil, err
	}
	if binary.BigEndian.Uint32(b[offFramingVector:offFramingVector+4]) != VectorFramingData {
		return nil, parseErr("invalid framing vector", offFramingVector)
	}
	if err := checkPDU(b, offDMPLength); err != nil {
		return nil, err
	}
	if b[offDMPVector] != VectorDMPSetProperty {
		return nil, parseErr("invalid DMP vector", offDMPVector)
	}
	if b[offAddrType] != AddressDataType {
		return nil, parseErr("invalid address and data type", offAddrType)
	}
	if binary.BigEndian.Uint16(b[offFirstAddr:offFirstAddr+2]) != 0 {
		return nil, parseErr("invalid first property address", offFirstAddr)
	}
	if binary.BigEndian.Uint16(b[offAddrIncrement:offAddrIncrement+2]) != 1 {
		return nil, parseErr("invalid address increment", offAddrIncrement)
	}

	count := int(binary.BigEndian.Uint16(b[offPropCount : offPropCount+2]))
	if count < 1 || count-1 > Slots {
		return nil, parseErr("invalid property value count", offPropCount)
	}
	if offStartCode+count > len(b) {
		return nil, parseErr("truncated property values", len(b))
	}

	p := &Packet{
		Kind:        KindData,
		Priority:    b[offPriority],
		SyncAddress: binary.BigEndian.Uint16(b[offSyncAddress : offSyncAddress+2]),
		Sequence:    b[offSequence],
		Options:     b[offOptions],
		Universe:    binary.BigEndian.Uint16(b[offUniverse : offUniverse+2]),
		StartCode:   b[offStartCode],
		Data:        b[offData : offStartCode+count],
	}
	if p.Priority > MaxPriority {
		return nil, parseErr("priority out of range", offPriority)
	}
	if p.Universe < MinUniverse || p.Universe > MaxUniverse {
		return nil, parseErr("universe out of range", offUniverse)
	}
	copy(p.CID[:], b[offCID:offCID+cidLen])
	p.SourceName = sourceName(b[offSourceName : offSourceName+sourceNameLen])
	return p, nil
}

func parseExtended(b []byte) (*Packet, error) {
	if len(b) < offFramingVector+4 {
		return nil, parseErr("truncated extended packet", len(b))
	}
	p := &Packet{}
	copy(p.CID[:], b[offCID:offCID+cidLen])
	switch binary.BigEndian.Uint32(b[offFramingVector : offFramingVector+4]) {
	case VectorExtendedSync:
		if len(b) < syncPacketLen {
			return nil, parseErr("truncated sync packet", len(b))
		}
		p.Kind = KindSync
		p.Sequence = b[44]
		p.SyncAddress = binary.BigEndian.Uint16(b[45:47])
	case VectorExtendedDiscover:
		if len(b) < minDiscoverLen {
			return nil, parseErr("truncated discovery packet", len(b))
		}
		p.Kind = KindDiscovery
		p.SourceName = sourceName(b[offSourceName : offSourceName+sourceNameLen])
	default:
		return nil, parseErr("unknown extended framing vector", offFramingVector)
	}
	return p, nil
}

// checkPDU validates the flags nibble and that the PDU length fits the datagram.
func checkPDU(b []byte, off int) error {
	v := binary.BigEndian.Uint16(b[off : off+2])
	if v&flagsMask != flagsPDU {
		return parseErr("invalid PDU flags", off)
	}
	if int(v&lengthMask) > len(b)-off {
		return parseErr("PDU length exceeds datagram", off)
	}
	return nil
}

func sourceName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// TruncateName cuts s to at most n bytes without splitting a UTF-8 sequence.
func TruncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// MarshalBinary encodes a data packet with the layer lengths filled in.
func (p *Packet) MarshalBinary() ([]byte, error) {
	if len(p.Data) > Slots {
		return nil, ErrDataTooLong
	}
	if err := ValidateUniverse(int(p.Universe)); err != nil {
		return nil, err
	}
	n := HeaderLen + len(p.Data)
	b := make([]byte, n)

	binary.BigEndian.PutUint16(b[0:2], PreambleSize)
	binary.BigEndian.PutUint16(b[2:4], PostambleSize)
	copy(b[4:16], ACNPacketIdentifier[:])
	binary.BigEndian.PutUint16(b[offRootLength:], uint16(flagsPDU|(n-offRootLength)))
	binary.BigEndian.PutUint32(b[offRootVector:], VectorRootData)
	copy(b[offCID:offCID+cidLen], p.CID[:])

	binary.BigEndian.PutUint16(b[offFramingLength:], uint16(flagsPDU|(n-offFramingLength)))
	binary.BigEndian.PutUint32(b[offFramingVector:], VectorFramingData)
	copy(b[offSourceName:], TruncateName(p.SourceName, sourceNameLen-1))
	b[offPriority] = p.Priority
	binary.BigEndian.PutUint16(b[offSyncAddress:], p.SyncAddress)
	b[offSequence] = p.Sequence
	b[offOptions] = p.Options
	binary.BigEndian.PutUint16(b[offUniverse:], p.Universe)

	binary.BigEndian.PutUint16(b[offDMPLength:], uint16(flagsPDU|(n-offDMPLength)))
	b[offDMPVector] = VectorDMPSetProperty
	b[offAddrType] = AddressDataType
	binary.BigEndian.PutUint16(b[offFirstAddr:], 0)
	binary.BigEndian.PutUint16(b[offAddrIncrement:], 1)
	binary.BigEndian.PutUint16(b[offPropCount:], uint16(len(p.Data)+1))
	b[offStartCode] = p.StartCode
	copy(b[offData:], p.Data)
	return b, nil
}
