package wire

// This file defines the JSON payload shape for every control-message type
// named in the data model. Field names are the wire contract; Go-side
// consumers should treat these as the schema (Open Question 1 resolution).

type DeviceType string

const (
	DeviceTypeMac     DeviceType = "mac"
	DeviceTypeIPad    DeviceType = "ipad"
	DeviceTypeIPhone  DeviceType = "iphone"
	DeviceTypeUnknown DeviceType = "unknown"
)

type Hello struct {
	DeviceID      string     `json:"deviceId"`
	DeviceName    string     `json:"deviceName"`
	DeviceType    DeviceType `json:"deviceType"`
	ICloudUserID  string     `json:"iCloudUserId,omitempty"`
	ProtocolMajor uint8      `json:"protocolMajor"`
}

type HelloResponse struct {
	Accepted bool   `json:"accepted"`
	HostID   string `json:"hostId,omitempty"`
	HostName string `json:"hostName,omitempty"`
	DataPort uint16 `json:"dataPort,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type LatencyMode string

const (
	LatencyModeSmoothest LatencyMode = "smoothest"
	LatencyModeBalanced  LatencyMode = "balanced"
	LatencyModeLowest    LatencyMode = "lowest"
)

type StartStream struct {
	WindowID        uint32      `json:"windowId"` // 0 = desktop/login
	MaxRefreshRate  int         `json:"maxRefreshRate"`
	StreamScale     float64     `json:"streamScale"`
	AdaptiveScale   bool        `json:"adaptiveScale"`
	LatencyMode     LatencyMode `json:"latencyMode"`
	MinBitrateBps   int         `json:"minBitrateBps,omitempty"`
	MaxBitrateBps   int         `json:"maxBitrateBps,omitempty"`
	KeyframeIntervl int         `json:"keyframeIntervalFrames,omitempty"`
}

type StopStream struct {
	StreamID uint16 `json:"streamId"`
}

type StreamStarted struct {
	StreamID       uint16 `json:"streamId"`
	DimensionToken uint32 `json:"dimensionToken"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	FrameRate      int    `json:"frameRate"`
	LoginDisplay   bool   `json:"loginDisplay,omitempty"`
	DesktopStream  bool   `json:"desktopStream,omitempty"`
}

type KeyframeRequest struct {
	StreamID uint16 `json:"streamId"`
}

type InputEventType string

const (
	InputMouseMove    InputEventType = "mouseMove"
	InputMouseDrag    InputEventType = "mouseDrag"
	InputMouseDown    InputEventType = "mouseDown"
	InputMouseUp      InputEventType = "mouseUp"
	InputScroll       InputEventType = "scroll"
	InputKeyDown      InputEventType = "keyDown"
	InputKeyUp        InputEventType = "keyUp"
	InputFlagsChanged InputEventType = "flagsChanged"
	InputMagnify      InputEventType = "magnify"
	InputRotate       InputEventType = "rotate"
)

type GesturePhase string

const (
	GesturePhaseBegan     GesturePhase = "began"
	GesturePhaseChanged   GesturePhase = "changed"
	GesturePhaseEnded     GesturePhase = "ended"
	GesturePhaseCancelled GesturePhase = "cancelled"
)

// InputEvent is the hot-path payload (component J/K). Coordinates are
// normalized [0,1] relative to the target window/display frame at the
// time of capture.
type InputEvent struct {
	StreamID  uint16         `json:"streamId"`
	Type      InputEventType `json:"type"`
	X         float64        `json:"x,omitempty"`
	Y         float64        `json:"y,omitempty"`
	Button    int            `json:"button,omitempty"`
	DeltaX    float64        `json:"deltaX,omitempty"`
	DeltaY    float64        `json:"deltaY,omitempty"`
	KeyCode   int            `json:"keyCode,omitempty"`
	Modifiers uint32         `json:"modifiers,omitempty"`
	Magnitude float64        `json:"magnitude,omitempty"`
	Phase     GesturePhase   `json:"phase,omitempty"`
}

type DisplayResolutionChange struct {
	StreamID uint16 `json:"streamId"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type StreamScaleChange struct {
	StreamID       uint16  `json:"streamId"`
	Scale          float64 `json:"scale"`
	DimensionToken uint32  `json:"dimensionToken"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
}

type StreamRefreshRateChange struct {
	StreamID  uint16 `json:"streamId"`
	FrameRate int    `json:"frameRate"`
}

type SessionState string

const (
	SessionActive      SessionState = "active"
	SessionLocked      SessionState = "locked"
	SessionLoginScreen SessionState = "loginScreen"
	SessionScreensaver SessionState = "screensaver"
	SessionSleeping    SessionState = "sleeping"
)

type SessionStateUpdate struct {
	State          SessionState `json:"state"`
	NewSessionToken string      `json:"newSessionToken,omitempty"`
}

type UnlockRequest struct {
	SessionToken     string `json:"sessionToken"`
	RequiresUsername bool   `json:"requiresUsername"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
}

type UnlockErrorCode string

const (
	UnlockErrorNone           UnlockErrorCode = ""
	UnlockErrorSessionExpired UnlockErrorCode = "sessionExpired"
	UnlockErrorWrongToken     UnlockErrorCode = "wrongToken"
	UnlockErrorTooManyRetries UnlockErrorCode = "tooManyRetries"
	UnlockErrorAuthFailed     UnlockErrorCode = "authFailed"
)

type UnlockResponse struct {
	Success           bool            `json:"success"`
	NewState          SessionState    `json:"newState,omitempty"`
	NewSessionToken   string          `json:"newSessionToken,omitempty"`
	CanRetry          bool            `json:"canRetry"`
	RetriesRemaining  int             `json:"retriesRemaining"`
	RetryAfterSeconds float64         `json:"retryAfterSeconds,omitempty"`
	ErrorCode         UnlockErrorCode `json:"errorCode,omitempty"`
}

type AppListRequest struct {
	IncludeIcons bool `json:"includeIcons"`
}

type AppInfo struct {
	BundleID string `json:"bundleId"`
	AppName  string `json:"appName"`
	AppPath  string `json:"appPath"`
	IconPNG  []byte `json:"iconPng,omitempty"`
}

type AppList struct {
	Apps []AppInfo `json:"apps"`
}

type SelectApp struct {
	BundleID string `json:"bundleId"`
}

type StreamedWindow struct {
	WindowID  uint32 `json:"windowId"`
	StreamID  uint16 `json:"streamId"`
	Title     string `json:"title"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Resizable bool   `json:"resizable"`
}

type AppStreamStarted struct {
	BundleID string           `json:"bundleId"`
	Windows  []StreamedWindow `json:"windows"`
}

type WindowAddedToStream struct {
	BundleID string         `json:"bundleId"`
	Window   StreamedWindow `json:"window"`
}

type WindowCooldownStarted struct {
	BundleID string  `json:"bundleId"`
	WindowID uint32  `json:"windowId"`
	Seconds  float64 `json:"seconds"`
}

type WindowCooldownCancelled struct {
	BundleID string `json:"bundleId"`
	WindowID uint32 `json:"windowId"`
}

type ReturnToAppSelection struct {
	BundleID string `json:"bundleId"`
}

type AppTerminated struct {
	BundleID          string   `json:"bundleId"`
	ClosedWindowIDs   []uint32 `json:"closedWindowIds"`
	HasRemainingWindows bool   `json:"hasRemainingWindows"`
}

type CloseWindowRequest struct {
	WindowID uint32 `json:"windowId"`
}

type StreamPaused struct {
	StreamID uint16 `json:"streamId"`
	Reason   string `json:"reason,omitempty"`
}

type StreamResumed struct {
	StreamID uint16 `json:"streamId"`
}

type CursorUpdate struct {
	StreamID uint16 `json:"streamId"`
	ImagePNG []byte `json:"imagePng"`
	HotspotX float64 `json:"hotspotX"`
	HotspotY float64 `json:"hotspotY"`
}

type CursorPositionUpdate struct {
	StreamID uint16 `json:"streamId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Visible  bool   `json:"visible"`
}

type MenuItem struct {
	Title    string     `json:"title"`
	Enabled  bool       `json:"enabled"`
	Checked  bool       `json:"checked,omitempty"`
	ActionID string     `json:"actionId,omitempty"`
	Children []MenuItem `json:"children,omitempty"`
}

type MenuBarUpdate struct {
	StreamID uint16     `json:"streamId"`
	Menus    []MenuItem `json:"menus"`
}

type MenuActionRequest struct {
	StreamID uint16 `json:"streamId"`
	ActionID string `json:"actionId"`
}

type MenuActionResult struct {
	StreamID uint16 `json:"streamId"`
	ActionID string `json:"actionId"`
	Success  bool   `json:"success"`
}

type DesktopStreamMode string

const (
	DesktopModeMirrored  DesktopStreamMode = "mirrored"
	DesktopModeSecondary DesktopStreamMode = "secondary"
)

type StartDesktopStream struct {
	Mode           DesktopStreamMode `json:"mode"`
	MaxRefreshRate int               `json:"maxRefreshRate"`
	StreamScale    float64           `json:"streamScale"`
}

type StopDesktopStream struct{}

type DesktopStreamStarted struct {
	StreamID       uint16            `json:"streamId"`
	DimensionToken uint32            `json:"dimensionToken"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	Mode           DesktopStreamMode `json:"mode"`
}

type DesktopStreamStopped struct {
	Reason string `json:"reason,omitempty"`
}

type LoginDisplayReady struct {
	StreamID       uint16 `json:"streamId"`
	DimensionToken uint32 `json:"dimensionToken"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

type LoginDisplayStopped struct {
	Reason string `json:"reason,omitempty"`
}

type ContentBoundsUpdate struct {
	StreamID uint16  `json:"streamId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

type StreamMetricsUpdate struct {
	StreamID      uint16  `json:"streamId"`
	FramesSent    uint64  `json:"framesSent"`
	FramesDropped uint64  `json:"framesDropped"`
	BandwidthKBps float64 `json:"bandwidthKBps"`
	EncodeMs      float64 `json:"encodeMs"`
	CurrentScale  float64 `json:"currentScale"`
	CurrentBitrate int    `json:"currentBitrate"`
}

type QualityStage struct {
	TargetBitrateBps int `json:"targetBitrateBps"`
	DurationMs       int `json:"durationMs"`
}

type QualityTestRequest struct {
	TestID string         `json:"testId"`
	Stages []QualityStage `json:"stages"`
}

type QualityTestResult struct {
	TestID          string  `json:"testId"`
	BenchmarkWidth  int     `json:"benchmarkW"`
	BenchmarkHeight int     `json:"benchmarkH"`
	BenchmarkFps    float64 `json:"benchmarkFps"`
	EncodeMs        float64 `json:"encodeMs"`
	BenchmarkVersion int    `json:"benchmarkVersion"`
}

type Ping struct {
	Nonce uint64 `json:"nonce"`
}

type Pong struct {
	Nonce uint64 `json:"nonce"`
}

type Disconnect struct {
	Reason string `json:"reason,omitempty"`
}
