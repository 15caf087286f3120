package core

import "io"

// CaptureDevice is an opened microphone. Read blocks until samples are
// available and returns raw 16-bit little-endian mono PCM.
type CaptureDevice interface {
	io.Reader
	Close() error
}

// OutputDevice is an opened speaker stream accepting raw PCM.
type OutputDevice interface {
	io.Writer
	Close() error
}

type CaptureOpener func() (CaptureDevice, error)

type OutputOpener func() (OutputDevice, error)
