package backend

import "fmt"

// NullBackend is a host-memory-only backend.
//
// Images and buffers are plain byte slices and copies are memcpy, so the
// full pooling and transfer pipeline runs without any graphics hardware.
// It is the fallback when no Vulkan device is present and the fixture for
// tests of the device core.
type NullBackend struct {
	initialized bool
}

// init registers the null backend on package import.
func init() {
	Register(BackendNull, func() Backend {
		return &NullBackend{}
	})
}

// NewNullBackend creates a new null backend.
func NewNullBackend() *NullBackend {
	return &NullBackend{}
}

// Name returns the backend identifier.
func (b *NullBackend) Name() string {
	return BackendNull
}

// Init initializes the backend. It cannot fail; there is no device.
func (b *NullBackend) Init() error {
	b.initialized = true
	return nil
}

// Close releases all backend resources.
func (b *NullBackend) Close() {
	b.initialized = false
}

// nullImage is a host byte slice standing in for a device image.
type nullImage struct {
	data   []byte
	width  int
	height int
}

func (img *nullImage) Destroy() {
	img.data = nil
}

// nullBuffer is host memory standing in for mapped transfer memory.
type nullBuffer struct {
	data  []byte
	write bool
}

func (buf *nullBuffer) Bytes() []byte { return buf.data }
func (buf *nullBuffer) Destroy()      { buf.data = nil }

// nullCompletion reports done on the first poll; memcpy has no latency
// worth modelling.
type nullCompletion struct{}

func (nullCompletion) Done() (bool, error) { return true, nil }
func (nullCompletion) Release()            {}

// CreateImage allocates a zeroed host-side image.
func (b *NullBackend) CreateImage(width, height, stride int, depth BitDepth) (Image, error) {
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	return &nullImage{
		data:   make([]byte, width*height*stride*depth.Bytes()),
		width:  width,
		height: height,
	}, nil
}

// ClearImage zeroes the image bytes.
func (b *NullBackend) ClearImage(img Image) error {
	ni, ok := img.(*nullImage)
	if !ok {
		return fmt.Errorf("backend: foreign image %T", img)
	}
	clear(ni.data)
	return nil
}

// AllocBuffer allocates host memory.
func (b *NullBackend) AllocBuffer(size int, write bool) (HostBuffer, error) {
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	return &nullBuffer{data: make([]byte, size), write: write}, nil
}

// CopyBufferToImage copies buffer bytes into the image.
func (b *NullBackend) CopyBufferToImage(src HostBuffer, dst Image) error {
	nb, ok := src.(*nullBuffer)
	if !ok {
		return fmt.Errorf("backend: foreign buffer %T", src)
	}
	ni, ok := dst.(*nullImage)
	if !ok {
		return fmt.Errorf("backend: foreign image %T", dst)
	}
	copy(ni.data, nb.data)
	return nil
}

// CopyImageToBuffer copies image bytes into the buffer. The returned
// completion is already signaled.
func (b *NullBackend) CopyImageToBuffer(src Image, dst HostBuffer) (Completion, error) {
	ni, ok := src.(*nullImage)
	if !ok {
		return nil, fmt.Errorf("backend: foreign image %T", src)
	}
	nb, ok := dst.(*nullBuffer)
	if !ok {
		return nil, fmt.Errorf("backend: foreign buffer %T", dst)
	}
	copy(nb.data, ni.data)
	return nullCompletion{}, nil
}
