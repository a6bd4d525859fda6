// Package wire implements Mirage's control-frame codec and UDP datagram
// framing: the only format spoken over the TCP control socket and the UDP
// data socket.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is carried in every control frame header and in every
// helloResponse. A mismatch causes the peer to reject the connection.
const ProtocolVersion uint8 = 1

const (
	headerLen  = 4 + 1 + 1 // u32 length | u8 type | u8 version
	maxPayload = 16 << 20  // guard against a runaway length prefix
)

// ErrShortBuffer is returned by Decode when buf does not yet hold a
// complete frame; the caller should retain buf and append more data.
var ErrShortBuffer = errors.New("wire: short buffer")

// ErrVersionMismatch indicates the frame's version byte did not match
// ProtocolVersion.
var ErrVersionMismatch = errors.New("wire: protocol version mismatch")

// ErrFrameTooLarge indicates the length prefix exceeded maxPayload.
var ErrFrameTooLarge = errors.New("wire: frame too large")

// Type identifies the kind of control message a Frame carries.
type Type uint8

const (
	TypeHello Type = iota + 1
	TypeHelloResponse
	TypeStartStream
	TypeStopStream
	TypeStreamStarted
	TypeKeyframeRequest
	TypeInputEvent
	TypeDisplayResolutionChange
	TypeStreamScaleChange
	TypeStreamRefreshRateChange
	TypeSessionStateUpdate
	TypeUnlockRequest
	TypeUnlockResponse
	TypeAppListRequest
	TypeAppList
	TypeSelectApp
	TypeAppStreamStarted
	TypeWindowAddedToStream
	TypeWindowCooldownStarted
	TypeWindowCooldownCancelled
	TypeReturnToAppSelection
	TypeAppTerminated
	TypeCloseWindowRequest
	TypeStreamPaused
	TypeStreamResumed
	TypeCursorUpdate
	TypeCursorPositionUpdate
	TypeMenuBarUpdate
	TypeMenuActionRequest
	TypeMenuActionResult
	TypeStartDesktopStream
	TypeStopDesktopStream
	TypeDesktopStreamStarted
	TypeDesktopStreamStopped
	TypeLoginDisplayReady
	TypeLoginDisplayStopped
	TypeContentBoundsUpdate
	TypeStreamMetricsUpdate
	TypeQualityTestRequest
	TypeQualityTestResult
	TypePing
	TypePong
	TypeDisconnect
)

var typeNames = map[Type]string{
	TypeHello:                   "hello",
	TypeHelloResponse:           "helloResponse",
	TypeStartStream:             "startStream",
	TypeStopStream:              "stopStream",
	TypeStreamStarted:           "streamStarted",
	TypeKeyframeRequest:         "keyframeRequest",
	TypeInputEvent:              "inputEvent",
	TypeDisplayResolutionChange: "displayResolutionChange",
	TypeStreamScaleChange:       "streamScaleChange",
	TypeStreamRefreshRateChange: "streamRefreshRateChange",
	TypeSessionStateUpdate:      "sessionStateUpdate",
	TypeUnlockRequest:           "unlockRequest",
	TypeUnlockResponse:          "unlockResponse",
	TypeAppListRequest:          "appListRequest",
	TypeAppList:                 "appList",
	TypeSelectApp:               "selectApp",
	TypeAppStreamStarted:        "appStreamStarted",
	TypeWindowAddedToStream:     "windowAddedToStream",
	TypeWindowCooldownStarted:   "windowCooldownStarted",
	TypeWindowCooldownCancelled: "windowCooldownCancelled",
	TypeReturnToAppSelection:    "returnToAppSelection",
	TypeAppTerminated:           "appTerminated",
	TypeCloseWindowRequest:      "closeWindowRequest",
	TypeStreamPaused:            "streamPaused",
	TypeStreamResumed:           "streamResumed",
	TypeCursorUpdate:            "cursorUpdate",
	TypeCursorPositionUpdate:    "cursorPositionUpdate",
	TypeMenuBarUpdate:           "menuBarUpdate",
	TypeMenuActionRequest:       "menuActionRequest",
	TypeMenuActionResult:        "menuActionResult",
	TypeStartDesktopStream:      "startDesktopStream",
	TypeStopDesktopStream:       "stopDesktopStream",
	TypeDesktopStreamStarted:    "desktopStreamStarted",
	TypeDesktopStreamStopped:    "desktopStreamStopped",
	TypeLoginDisplayReady:       "loginDisplayReady",
	TypeLoginDisplayStopped:     "loginDisplayStopped",
	TypeContentBoundsUpdate:     "contentBoundsUpdate",
	TypeStreamMetricsUpdate:     "streamMetricsUpdate",
	TypeQualityTestRequest:      "qualityTestRequest",
	TypeQualityTestResult:       "qualityTestResult",
	TypePing:                    "ping",
	TypePong:                    "pong",
	TypeDisconnect:              "disconnect",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// IsInputEvent reports whether t is the hot-path input message type; the
// router dispatches it to the input queue instead of the cold-path handler.
func (t Type) IsInputEvent() bool { return t == TypeInputEvent }

// Frame is one decoded control message: a typed, versioned, JSON payload.
// JSON is the self-describing payload encoding this codec standardizes on
// (Open Question 1) — it keeps the wire layer a thin framing shim over the
// same typed-struct/JSON idiom the payloads themselves are defined in.
type Frame struct {
	Type    Type
	Version uint8
	Payload []byte
}

// Encode marshals payload to JSON and wraps it in a length-prefixed frame.
func Encode(typ Type, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %s payload: %w", typ, err)
	}
	return EncodeRaw(typ, body), nil
}

// EncodeRaw wraps an already-encoded payload in a length-prefixed frame.
func EncodeRaw(typ Type, payload []byte) []byte {
	out := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(payload)+2))
	out[4] = byte(typ)
	out[5] = ProtocolVersion
	copy(out[headerLen:], payload)
	return out
}

// Decode attempts to parse one complete frame from the front of buf. On
// success it returns the frame and the number of bytes consumed. If buf
// does not yet contain a complete frame, it returns ErrShortBuffer and the
// caller must retain buf (appending further reads) and retry.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < 4 {
		return Frame{}, 0, ErrShortBuffer
	}
	bodyLen := binary.BigEndian.Uint32(buf[0:4])
	if bodyLen < 2 {
		return Frame{}, 0, fmt.Errorf("wire: invalid frame length %d", bodyLen)
	}
	if bodyLen > maxPayload {
		return Frame{}, 0, ErrFrameTooLarge
	}
	total := 4 + int(bodyLen)
	if len(buf) < total {
		return Frame{}, 0, ErrShortBuffer
	}
	typ := Type(buf[4])
	version := buf[5]
	payload := buf[headerLen:total]
	f := Frame{Type: typ, Version: version, Payload: payload}
	if version != ProtocolVersion {
		return f, total, ErrVersionMismatch
	}
	return f, total, nil
}

// Unmarshal decodes the frame's JSON payload into v.
func (f Frame) Unmarshal(v any) error {
	return json.Unmarshal(f.Payload, v)
}
