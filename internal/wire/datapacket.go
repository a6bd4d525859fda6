package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DataMagic identifies a UDP video/audio data-channel packet.
var DataMagic = [4]byte{'M', 'I', 'R', 'G'}

// ProbeMagic identifies a UDP quality-probe packet (component M).
var ProbeMagic = [4]byte{'M', 'I', 'R', 'Q'}

// Registration-datagram length: magic + u16 streamId. The client sends
// exactly one of these before the host will emit any frame for streamId.
const RegistrationLen = 4 + 2

// DataFlag bits carried in a DataHeader.
type DataFlag uint8

const (
	// FlagKeyframe marks the payload as containing (the start of) a keyframe.
	FlagKeyframe DataFlag = 1 << iota
	// FlagRTCP marks the payload as an RTCP receiver/sender report rather
	// than video payload; used by the adaptive bitrate feedback path.
	FlagRTCP
)

// DataHeader is the 12-byte header prefixing every UDP video-data packet:
// magic(4) | streamId u16 LE | dimensionToken u32 LE | flags u8 | reserved u8.
type DataHeader struct {
	StreamID       uint16
	DimensionToken uint32
	Flags          DataFlag
}

const DataHeaderLen = 12

// EncodeDataHeader writes h followed by payload into a single buffer.
func EncodeDataHeader(h DataHeader, payload []byte) []byte {
	out := make([]byte, DataHeaderLen+len(payload))
	copy(out[0:4], DataMagic[:])
	binary.LittleEndian.PutUint16(out[4:6], h.StreamID)
	binary.LittleEndian.PutUint32(out[6:10], h.DimensionToken)
	out[10] = byte(h.Flags)
	out[11] = 0
	copy(out[DataHeaderLen:], payload)
	return out
}

// DecodeDataHeader parses the 12-byte header from the front of buf and
// returns the header plus the remaining payload slice (aliasing buf).
func DecodeDataHeader(buf []byte) (DataHeader, []byte, error) {
	if len(buf) < DataHeaderLen {
		return DataHeader{}, nil, fmt.Errorf("wire: short data packet (%d bytes)", len(buf))
	}
	if buf[0] != DataMagic[0] || buf[1] != DataMagic[1] || buf[2] != DataMagic[2] || buf[3] != DataMagic[3] {
		return DataHeader{}, nil, errors.New("wire: bad data packet magic")
	}
	h := DataHeader{
		StreamID:       binary.LittleEndian.Uint16(buf[4:6]),
		DimensionToken: binary.LittleEndian.Uint32(buf[6:10]),
		Flags:          DataFlag(buf[10]),
	}
	return h, buf[DataHeaderLen:], nil
}

// EncodeRegistration builds the one-shot datagram a client sends to
// register its UDP socket for streamId before any frame will be sent.
func EncodeRegistration(streamID uint16) []byte {
	out := make([]byte, RegistrationLen)
	copy(out[0:4], DataMagic[:])
	binary.LittleEndian.PutUint16(out[4:6], streamID)
	return out
}

// DecodeRegistration parses a registration datagram, returning the stream id.
func DecodeRegistration(buf []byte) (uint16, error) {
	if len(buf) < RegistrationLen {
		return 0, errors.New("wire: short registration datagram")
	}
	if buf[0] != DataMagic[0] || buf[1] != DataMagic[1] || buf[2] != DataMagic[2] || buf[3] != DataMagic[3] {
		return 0, errors.New("wire: bad registration magic")
	}
	return binary.LittleEndian.Uint16(buf[4:6]), nil
}

// ProbeHeader is the quality-probe packet header (component M):
// magic(4) | testId uuid(16) | stageId u16 LE | sequence u32 LE |
// timestampNs u64 LE | payloadLen u16 LE.
type ProbeHeader struct {
	TestID      uuid.UUID
	StageID     uint16
	Sequence    uint32
	TimestampNs uint64
	PayloadLen  uint16
}

const ProbeHeaderLen = 4 + 16 + 2 + 4 + 8 + 2

func EncodeProbePacket(h ProbeHeader, payload []byte) []byte {
	out := make([]byte, ProbeHeaderLen+len(payload))
	copy(out[0:4], ProbeMagic[:])
	copy(out[4:20], h.TestID[:])
	binary.LittleEndian.PutUint16(out[20:22], h.StageID)
	binary.LittleEndian.PutUint32(out[22:26], h.Sequence)
	binary.LittleEndian.PutUint64(out[26:34], h.TimestampNs)
	binary.LittleEndian.PutUint16(out[34:36], h.PayloadLen)
	copy(out[ProbeHeaderLen:], payload)
	return out
}

func DecodeProbePacket(buf []byte) (ProbeHeader, []byte, error) {
	if len(buf) < ProbeHeaderLen {
		return ProbeHeader{}, nil, errors.New("wire: short probe packet")
	}
	if buf[0] != ProbeMagic[0] || buf[1] != ProbeMagic[1] || buf[2] != ProbeMagic[2] || buf[3] != ProbeMagic[3] {
		return ProbeHeader{}, nil, errors.New("wire: bad probe packet magic")
	}
	var id uuid.UUID
	copy(id[:], buf[4:20])
	h := ProbeHeader{
		TestID:      id,
		StageID:     binary.LittleEndian.Uint16(buf[20:22]),
		Sequence:    binary.LittleEndian.Uint32(buf[22:26]),
		TimestampNs: binary.LittleEndian.Uint64(buf[26:34]),
		PayloadLen:  binary.LittleEndian.Uint16(buf[34:36]),
	}
	return h, buf[ProbeHeaderLen:], nil
}
