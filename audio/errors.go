package audio

import "errors"

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrDecode            = errors.New("audio decode failed")
	ErrCaptureRunning    = errors.New("audio capture already running")
)
