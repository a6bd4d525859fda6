package streamctx

import (
	"time"

	"github.com/pion/rtcp"
)

// ParseRTCPFeedback unmarshals an RTCP-framed payload (received after the
// 12-byte data header when wire.FlagRTCP is set) and extracts the
// fraction-lost and round-trip-time samples the adaptive controller
// expects. Grounded on the DOMAIN STACK decision to carry pion/rtcp
// Receiver/Sender Report marshaling over the custom UDP channel instead
// of hand-rolling an RTCP codec, since this stream has no WebRTC peer
// connection supplying RTCP natively.
func ParseRTCPFeedback(payload []byte) (rtt time.Duration, packetLoss float64, ok bool) {
	packets, err := rtcp.Unmarshal(payload)
	if err != nil {
		return 0, 0, false
	}

	var sawReport bool
	for _, pkt := range packets {
		rr, isRR := pkt.(*rtcp.ReceiverReport)
		if !isRR || len(rr.Reports) == 0 {
			continue
		}
		report := rr.Reports[0]
		packetLoss = float64(report.FractionLost) / 256.0
		if report.DelaySinceLastSenderReport > 0 && report.LastSenderReport != 0 {
			// Standard RTCP round-trip estimate: arrival - lastSR - delaySinceLastSR,
			// all three in compact NTP form (1/65536ths of a second).
			now := time.Now()
			ntpSecs := uint64(now.Unix()) + 2208988800
			ntpFrac := (uint64(now.Nanosecond()) << 32) / 1_000_000_000
			arrival := uint32(ntpSecs<<16 | ntpFrac>>16)
			if d := arrival - report.LastSenderReport - report.DelaySinceLastSenderReport; d < 1<<31 {
				rtt = time.Duration(d) * time.Second / 65536
			}
		}
		sawReport = true
		break
	}
	return rtt, packetLoss, sawReport
}
