// Package backend defines the device-specific primitives behind the
// accelerator core.
//
// The pooling, executor, and transfer logic upstream is backend-agnostic;
// a Backend supplies only creation and copy primitives for one graphics
// API. Two variants ship with the module: the null backend in this package
// (host memory only, always available) and the Vulkan backend in
// accel/vulkan, registered by importing that package.
//
// Thread discipline: Init, Close, CreateImage, ClearImage,
// CopyBufferToImage, and CopyImageToBuffer are serialized by the owning
// device executor; exactly one of them runs at a time, always on a
// goroutine locked to its OS thread. AllocBuffer may be called from any
// goroutine; host-buffer creation does not require serialized device calls.
package backend

import "errors"

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrNoMemoryType is returned when no device memory type satisfies the
	// requested property flags. The in-flight operation is lost; retrying
	// with the same constraints cannot succeed.
	ErrNoMemoryType = errors.New("backend: no suitable memory type")
)

// BitDepth is the per-channel bit depth class of an image.
type BitDepth uint8

const (
	// Depth8 is 8 bits per channel.
	Depth8 BitDepth = iota
	// Depth16 is 16 bits per channel.
	Depth16
)

// Bytes returns the number of bytes per channel.
func (d BitDepth) Bytes() int {
	if d == Depth16 {
		return 2
	}
	return 1
}

// String returns a human-readable name for the depth class.
func (d BitDepth) String() string {
	if d == Depth16 {
		return "16bit"
	}
	return "8bit"
}

// Image is an opaque device-resident image handle.
//
// Destroy frees the device resources; it must run on the executor
// goroutine. Images are created zeroed or are explicitly cleared by the
// caller via ClearImage before first use.
type Image interface {
	Destroy()
}

// HostBuffer is host-visible memory usable for GPU transfer.
//
// Bytes exposes the mapped memory; the slice stays valid until Destroy.
type HostBuffer interface {
	Bytes() []byte
	Destroy()
}

// Completion is the pollable handle of a submitted device operation,
// typically backed by a hardware fence.
type Completion interface {
	// Done polls once, without blocking, and reports whether the
	// operation has completed on the device.
	Done() (bool, error)

	// Release frees the fence and any per-submission resources.
	// Call exactly once, after Done has returned true or the operation
	// is being abandoned.
	Release()
}

// Backend supplies the device-specific primitives for one graphics API.
type Backend interface {
	// Name returns the backend identifier (e.g., "vulkan", "null").
	Name() string

	// Init creates the API instance, selects a compatible physical
	// device, and creates the logical device, queue, and command pool.
	// Failure is fatal for the graphics subsystem.
	Init() error

	// Close releases all backend resources. No image or buffer created
	// by this backend may be used afterwards.
	Close()

	// CreateImage allocates a device image of width x height pixels with
	// the given channel count (stride, 1-4) and bit depth.
	CreateImage(width, height, stride int, depth BitDepth) (Image, error)

	// ClearImage zeroes an image (transparent black).
	ClearImage(img Image) error

	// AllocBuffer allocates host-visible mapped memory of the given size.
	// write selects an upload-oriented buffer, otherwise download.
	AllocBuffer(size int, write bool) (HostBuffer, error)

	// CopyBufferToImage issues a device-side copy of the buffer contents
	// into the image. On return the buffer is reusable; ordering with
	// later device-side reads of the image follows queue ordering.
	CopyBufferToImage(src HostBuffer, dst Image) error

	// CopyImageToBuffer submits a device-side copy of the image contents
	// into the buffer, including any layout transition needed for host
	// reads, and returns a pollable completion. The buffer contents are
	// defined once the completion reports done.
	CopyImageToBuffer(src Image, dst HostBuffer) (Completion, error)
}
