package accel

import "errors"

// Device and resource errors.
var (
	// ErrInvalidDimensions is returned for non-positive width/height or a
	// stride outside the valid 1-4 range. This is a programming-contract
	// violation; dimensions are never clamped.
	ErrInvalidDimensions = errors.New("accel: invalid dimensions")

	// ErrInvalidSize is returned for a non-positive buffer size.
	ErrInvalidSize = errors.New("accel: invalid size")

	// ErrShortSource is returned when an upload source holds fewer bytes
	// than the destination texture requires.
	ErrShortSource = errors.New("accel: source smaller than texture")

	// ErrDeviceClosed is returned when operating on a closed device.
	ErrDeviceClosed = errors.New("accel: device closed")

	// ErrTextureReleased is returned when operating on a released texture.
	ErrTextureReleased = errors.New("accel: texture has been released")

	// ErrDeviceInit wraps fatal backend initialization failures (no
	// compatible device, device/queue/allocator creation failure).
	ErrDeviceInit = errors.New("accel: device initialization failed")
)
