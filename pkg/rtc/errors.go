package rtc

import "errors"

var (
	ErrNoTransceiver            = errors.New("no transceiver available for track")
	ErrInvalidSSRC              = errors.New("ssrc must be a number")
	ErrNoNativeTrack            = errors.New("track has no underlying native track")
	ErrSurfaceNil               = errors.New("render surface is nil")
	ErrSenderParametersNotReady = errors.New("sender parameters not populated yet")
)
