package core

import (
	"errors"

	"github.com/lisuiheng/zenflow-go/audio"
)

var (
	ErrPermissionDenied  = audio.ErrPermissionDenied
	ErrDeviceUnavailable = audio.ErrDeviceUnavailable
	ErrDecode            = audio.ErrDecode
	ErrTransport         = errors.New("transport error")
	ErrSynthesisFailure  = errors.New("speech synthesis returned no audio")
	ErrSessionClosed     = errors.New("live session closed")
	ErrSendQueueFull     = errors.New("live session send queue full")
)
