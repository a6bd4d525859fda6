package encoder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidQuality(t *testing.T) {
	_, err := New(Config{Quality: "ludicrous"})
	require.ErrorIs(t, err, ErrInvalidQuality)
}

func TestNewAppliesDefaults(t *testing.T) {
	enc, err := New(Config{})
	require.NoError(t, err)
	defer enc.Close()
	require.Equal(t, "openh264-software", enc.BackendName())
}

func TestEncodeRejectsEmptyFrame(t *testing.T) {
	enc, err := New(DefaultConfig())
	require.NoError(t, err)
	defer enc.Close()

	_, _, err = enc.Encode(nil, false)
	require.Error(t, err)
}

func TestEncodeBeforeDimensionsPassesThrough(t *testing.T) {
	enc, err := New(DefaultConfig())
	require.NoError(t, err)
	defer enc.Close()

	frame := []byte{1, 2, 3, 4}
	out, keyframe, err := enc.Encode(frame, false)
	require.NoError(t, err)
	require.True(t, keyframe)
	require.Equal(t, frame, out)
}

func TestSetBitrateRejectsNonPositive(t *testing.T) {
	enc, err := New(DefaultConfig())
	require.NoError(t, err)
	defer enc.Close()

	require.ErrorIs(t, enc.SetBitrate(0), ErrInvalidBitrate)
}

func TestSetFPSRejectsNonPositive(t *testing.T) {
	enc, err := New(DefaultConfig())
	require.NoError(t, err)
	defer enc.Close()

	require.ErrorIs(t, enc.SetFPS(-1), ErrInvalidFPS)
}

func TestCloseIsIdempotent(t *testing.T) {
	enc, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close())
}
