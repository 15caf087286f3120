package domain

import "errors"

var (
	ErrNicknameTooLong = errors.New("nickname too long")
	ErrNicknameEmpty   = errors.New("nickname empty")

	ErrAlreadyRecording     = errors.New("recording already in progress")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrDeviceUnavailable    = errors.New("audio device unavailable")
	ErrCaptureActive        = errors.New("capture already active")
	ErrUnknownPeer          = errors.New("unknown peer")
)
