package router

import "github.com/mirage/hostcore/internal/wire"

// dispatchColdPath processes every non-hello, non-inputEvent frame
// sequentially on the connection's own goroutine: the per-connection
// ReadLoop goroutine, since this host has one handler goroutine per
// connection rather than a single main-actor for all connections.
func (s *Session) dispatchColdPath(clientID string, f wire.Frame) error {
	switch f.Type {
	case wire.TypeStartStream:
		var req wire.StartStream
		if err := f.Unmarshal(&req); err != nil {
			return err
		}
		started, err := s.handlers.StartStream(clientID, req)
		if err != nil {
			log.Warn("start stream failed", "clientId", clientID, "error", err)
			return nil
		}
		return s.conn.SendMessage(wire.TypeStreamStarted, started)

	case wire.TypeStopStream:
		var req wire.StopStream
		if err := f.Unmarshal(&req); err != nil {
			return err
		}
		s.handlers.StopStream(clientID, req.StreamID)
		return nil

	case wire.TypeKeyframeRequest:
		var req wire.KeyframeRequest
		if err := f.Unmarshal(&req); err != nil {
			return err
		}
		s.handlers.RequestKeyframe(req.StreamID)
		return nil

	case wire.TypeStreamScaleChange:
		var req wire.StreamScaleChange
		if err := f.Unmarshal(&req); err != nil {
			return err
		}
		s.handlers.UpdateStreamScale(req.StreamID, req.Scale)
		return nil

	case wire.TypeStreamRefreshRateChange:
		var req struct {
			StreamID  uint16 `json:"streamId"`
			FrameRate int    `json:"frameRate"`
		}
		if err := f.Unmarshal(&req); err != nil {
			return err
		}
		s.handlers.UpdateStreamRefreshRate(req.StreamID, req.FrameRate)
		return nil

	case wire.TypeStartDesktopStream:
		if err := s.handlers.StartDesktopStream(clientID); err != nil {
			log.Warn("start desktop stream failed", "clientId", clientID, "error", err)
		}
		return nil

	case wire.TypeStopDesktopStream:
		s.handlers.StopDesktopStream(clientID)
		return nil

	case wire.TypeSelectApp:
		var req struct {
			BundleID string `json:"bundleId"`
		}
		if err := f.Unmarshal(&req); err != nil {
			return err
		}
		if err := s.handlers.SelectApp(clientID, req.BundleID); err != nil {
			log.Warn("select app failed", "clientId", clientID, "bundleId", req.BundleID, "error", err)
		}
		return nil

	case wire.TypeAppListRequest:
		s.handlers.RequestAppList(clientID)
		return nil

	case wire.TypeCloseWindowRequest:
		var req struct {
			WindowID uint32 `json:"windowId"`
		}
		if err := f.Unmarshal(&req); err != nil {
			return err
		}
		s.handlers.CloseWindow(clientID, req.WindowID)
		return nil

	case wire.TypeUnlockRequest:
		var req wire.UnlockRequest
		if err := f.Unmarshal(&req); err != nil {
			return err
		}
		resp := s.handlers.UnlockRequest(clientID, req)
		return s.conn.SendMessage(wire.TypeUnlockResponse, resp)

	case wire.TypeQualityTestRequest:
		var req wire.QualityTestRequest
		if err := f.Unmarshal(&req); err != nil {
			return err
		}
		result := s.handlers.QualityTestRequest(clientID, req)
		return s.conn.SendMessage(wire.TypeQualityTestResult, result)

	case wire.TypePing:
		var ping wire.Ping
		if err := f.Unmarshal(&ping); err != nil {
			return err
		}
		return s.conn.SendMessage(wire.TypePong, wire.Pong{Nonce: ping.Nonce})

	case wire.TypeDisconnect:
		return errClientDisconnect

	default:
		log.Warn("unhandled control message", "type", f.Type)
		return nil
	}
}
