package accel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/gobroadcast/accel/backend"
	"github.com/gobroadcast/accel/internal/executor"
	"github.com/gobroadcast/accel/internal/pool"
)

// Device owns one graphics backend, the executor that serializes all
// device-affecting calls, and the texture and host buffer pools.
//
// Methods are safe for concurrent use from any goroutine. Asynchronous
// operations return an [executor.Future]; callers wait on it or chain work
// off Done.
type Device struct {
	cfg  Config
	be   backend.Backend
	exec *executor.Executor

	textures *pool.Pool[textureShape, backend.Image]
	buffers  *pool.Pool[bufferShape, backend.HostBuffer]

	// transfers counts in-flight suspendable downloads. Close waits for
	// it to drain before tearing the backend down, so a download polling
	// its fence can never touch a destroyed device. transferMu orders
	// registration against the closed flag; a WaitGroup alone would let
	// an Add race the Wait.
	transferMu sync.Mutex
	transfers  sync.WaitGroup

	closed atomic.Bool
}

// Open selects a backend per cfg, initializes it on a fresh executor
// goroutine, and returns the ready device. Initialization failure is final:
// the executor is torn down and the error wraps ErrDeviceInit.
func Open(cfg Config) (*Device, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var be backend.Backend
	if cfg.Backend != "" {
		be = backend.Get(cfg.Backend)
	} else {
		be = backend.Default()
	}
	if be == nil {
		return nil, fmt.Errorf("%w: %q", backend.ErrBackendNotAvailable, cfg.Backend)
	}

	d := &Device{
		cfg:      cfg,
		be:       be,
		exec:     executor.New(),
		textures: pool.New[textureShape, backend.Image](cfg.BucketCapacity, hashTextureShape),
		buffers:  pool.New[bufferShape, backend.HostBuffer](cfg.BucketCapacity, hashBufferShape),
	}

	if _, err := executor.Sync(d.exec, func() (struct{}, error) {
		return struct{}{}, be.Init()
	}); err != nil {
		d.exec.Close()
		return nil, fmt.Errorf("%w: backend %s: %w", ErrDeviceInit, be.Name(), err)
	}

	Logger().Info("accel: device open", "backend", be.Name())
	return d, nil
}

// Backend returns the name of the backend in use.
func (d *Device) Backend() string { return d.be.Name() }

// checkShape validates texture dimensions at the request boundary.
func checkShape(width, height, stride int) error {
	if stride < 1 || stride > 4 {
		return fmt.Errorf("%w: stride %d", ErrInvalidDimensions, stride)
	}
	if width < 1 || height < 1 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return nil
}

// CreateTexture produces a texture of the given shape, reusing a pooled one
// when available, and clears it before returning. The call blocks until the
// texture is ready.
func (d *Device) CreateTexture(width, height, stride int, depth BitDepth) (*Texture, error) {
	if d.closed.Load() {
		return nil, ErrDeviceClosed
	}
	if err := checkShape(width, height, stride); err != nil {
		return nil, err
	}
	shape := textureShape{width: width, height: height, stride: stride, depth: depth}
	return executor.Sync(d.exec, func() (*Texture, error) {
		return d.acquireTexture(shape, true)
	})
}

// acquireTexture pops a pooled image of the given shape or creates a fresh
// one, optionally clearing it. Upload destinations skip the clear; they are
// overwritten in full. Executor goroutine only.
//
// A texture that fails to clear is destroyed rather than pooled, so a
// failed acquire never plants a half-initialized resource for a later
// caller.
func (d *Device) acquireTexture(shape textureShape, clearFirst bool) (*Texture, error) {
	img, pooled := d.textures.TryAcquire(shape)
	if !pooled {
		var err error
		img, err = d.be.CreateImage(shape.width, shape.height, shape.stride, shape.depth)
		if err != nil {
			return nil, fmt.Errorf("accel: create texture: %w", err)
		}
	}
	if clearFirst {
		if err := d.be.ClearImage(img); err != nil {
			img.Destroy()
			return nil, fmt.Errorf("accel: clear texture: %w", err)
		}
	}
	return &Texture{dev: d, img: img, shape: shape}, nil
}

// CreateArray produces a host upload buffer of the given size wrapped in an
// Array. The contents are whatever the previous pooled user left behind;
// callers fill the array before uploading. Handing the array to
// CopyToTexture on this device makes the upload zero-copy.
func (d *Device) CreateArray(size int) (Array, error) {
	if d.closed.Load() {
		return Array{}, ErrDeviceClosed
	}
	if size < 1 {
		return Array{}, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	buf, err := d.acquireBuffer(bufferShape{size: size, write: true})
	if err != nil {
		return Array{}, err
	}
	return Array{data: buf.Bytes(), owner: buf}, nil
}

// acquireBuffer pops a pooled host buffer of the given shape or allocates a
// fresh one. Safe from any goroutine; host allocation needs no device
// serialization.
func (d *Device) acquireBuffer(shape bufferShape) (*Buffer, error) {
	raw, pooled := d.buffers.TryAcquire(shape)
	if !pooled {
		var err error
		raw, err = d.be.AllocBuffer(shape.size, shape.write)
		if err != nil {
			return nil, fmt.Errorf("accel: alloc buffer: %w", err)
		}
	}
	return &Buffer{dev: d, raw: raw, shape: shape}, nil
}

// CopyToTexture uploads src into a texture of the given shape and resolves
// the future with it. The device consumes src: its backing pooled buffer,
// if any, is released once staged, and src must not be touched after the
// call. An src produced by CreateArray on this device is used as the
// staging buffer directly; any other source is copied into one.
//
// The destination texture is not cleared before the copy; it is overwritten
// in full by the upload.
func (d *Device) CopyToTexture(src Array, width, height, stride int, depth BitDepth) *executor.Future[*Texture] {
	return executor.Async(d.exec, func() (*Texture, error) {
		if d.closed.Load() {
			return nil, ErrDeviceClosed
		}
		if err := checkShape(width, height, stride); err != nil {
			return nil, err
		}
		shape := textureShape{width: width, height: height, stride: stride, depth: depth}
		if src.Len() < shape.size() {
			return nil, fmt.Errorf("%w: have %d, need %d", ErrShortSource, src.Len(), shape.size())
		}

		staging := src.owner
		if staging == nil || staging.dev != d || !staging.shape.write {
			var err error
			staging, err = d.acquireBuffer(bufferShape{size: src.Len(), write: true})
			if err != nil {
				return nil, err
			}
			copy(staging.Bytes(), src.data)
		}

		tex, err := d.acquireTexture(shape, false)
		if err != nil {
			staging.Release()
			return nil, err
		}
		if err := d.be.CopyBufferToImage(staging.raw, tex.img); err != nil {
			staging.Release()
			tex.Release()
			return nil, fmt.Errorf("accel: upload: %w", err)
		}
		staging.Release()
		return tex, nil
	})
}

// CopyFromTexture downloads the texture contents into a pooled read buffer
// and resolves the future with an Array over it. The submitted copy's fence
// is polled every PollInterval; between polls the task is suspended and
// other device work interleaves, so a slow download never stalls the
// executor.
//
// The texture stays owned by the caller and must not be released until the
// future resolves.
func (d *Device) CopyFromTexture(tex *Texture) *executor.Future[Array] {
	if !d.registerTransfer() {
		return executor.Async(d.exec, func() (Array, error) {
			return Array{}, ErrDeviceClosed
		})
	}
	return executor.Spawn(d.exec, func(y *executor.Yield) (Array, error) {
		defer d.transfers.Done()

		if d.closed.Load() {
			return Array{}, ErrDeviceClosed
		}
		if tex.released.Load() {
			return Array{}, ErrTextureReleased
		}

		buf, err := d.acquireBuffer(bufferShape{size: tex.Size(), write: false})
		if err != nil {
			return Array{}, err
		}

		comp, err := d.be.CopyImageToBuffer(tex.img, buf.raw)
		if err != nil {
			buf.Release()
			return Array{}, fmt.Errorf("accel: download: %w", err)
		}

		for {
			if d.closed.Load() {
				// Close is waiting on this task before it tears the
				// backend down; unwind without another device call and
				// leave the fence and command buffer to be reclaimed
				// with the device.
				return Array{}, ErrDeviceClosed
			}
			done, err := comp.Done()
			if err != nil {
				comp.Release()
				buf.Release()
				return Array{}, fmt.Errorf("accel: download fence: %w", err)
			}
			if done {
				break
			}
			if err := y.Sleep(d.cfg.PollInterval); err != nil {
				return Array{}, err
			}
		}
		comp.Release()
		return Array{data: buf.Bytes(), owner: buf}, nil
	})
}

// registerTransfer reserves a slot in the in-flight transfer count,
// reporting false once the device is closed. Registration and the closed
// flip in Close are mutually exclusive, so every registered transfer is
// seen by Close's wait.
func (d *Device) registerTransfer() bool {
	d.transferMu.Lock()
	defer d.transferMu.Unlock()
	if d.closed.Load() {
		return false
	}
	d.transfers.Add(1)
	return true
}

// Dispatch runs fn on the device's executor goroutine, after all work
// queued before it. Use it to sequence custom backend work with the
// device's own transfers.
func (d *Device) Dispatch(fn func()) {
	d.exec.Dispatch(fn)
}

// Info snapshots the idle pooled resources of the device. Safe from any
// goroutine; counts may be stale by the time the caller reads them.
func (d *Device) Info() Info {
	info := Info{Backend: d.be.Name()}

	for _, st := range d.textures.Snapshot() {
		bytes := st.Key.size() * st.Count
		info.TexturePools = append(info.TexturePools, TexturePoolStat{
			Width:  st.Key.width,
			Height: st.Key.height,
			Stride: st.Key.stride,
			Depth:  st.Key.depth,
			Count:  st.Count,
			Bytes:  bytes,
		})
		info.TextureCount += st.Count
		info.TextureBytes += bytes
	}

	for _, st := range d.buffers.Snapshot() {
		bytes := st.Key.size * st.Count
		info.HostPools = append(info.HostPools, HostPoolStat{
			Size:  st.Key.size,
			Write: st.Key.write,
			Count: st.Count,
			Bytes: bytes,
		})
		if st.Key.write {
			info.HostWriteCount += st.Count
			info.HostWriteBytes += bytes
		} else {
			info.HostReadCount += st.Count
			info.HostReadBytes += bytes
		}
	}

	sortStats(&info)
	return info
}

// GC destroys every idle pooled resource on the executor goroutine.
// Resources currently held by callers are unaffected and re-enter the
// (now empty) pools on their next release.
func (d *Device) GC() *executor.Future[struct{}] {
	return executor.Async(d.exec, func() (struct{}, error) {
		if d.closed.Load() {
			return struct{}{}, ErrDeviceClosed
		}
		texN, texBytes, bufN, bufBytes := d.reclaim()
		Logger().Info("accel: gc",
			"textures", texN,
			"texture_bytes", humanize.IBytes(uint64(texBytes)),
			"buffers", bufN,
			"buffer_bytes", humanize.IBytes(uint64(bufBytes)))
		return struct{}{}, nil
	})
}

// reclaim drains both pools, destroying every idle resource. Executor
// goroutine only.
func (d *Device) reclaim() (texN, texBytes, bufN, bufBytes int) {
	texN = d.textures.Drain(func(k textureShape, img backend.Image) {
		texBytes += k.size()
		img.Destroy()
	})
	bufN = d.buffers.Drain(func(k bufferShape, raw backend.HostBuffer) {
		bufBytes += k.size
		raw.Destroy()
	})
	return
}

// releaseImage returns an image to the texture pool, destroying it on the
// executor goroutine when its bucket is full.
func (d *Device) releaseImage(shape textureShape, img backend.Image) {
	if d.textures.Release(shape, img) {
		return
	}
	d.exec.Dispatch(img.Destroy)
}

// releaseBuffer returns a host buffer to the buffer pool, destroying it on
// the executor goroutine when its bucket is full.
func (d *Device) releaseBuffer(shape bufferShape, raw backend.HostBuffer) {
	if d.buffers.Release(shape, raw) {
		return
	}
	d.exec.Dispatch(raw.Destroy)
}

// Close destroys all pooled resources, shuts the backend down, and stops
// the executor. In-flight downloads resolve with ErrDeviceClosed at their
// next poll; work submitted afterwards resolves with [executor.ErrClosed].
// Close is idempotent; only the first call does the teardown.
func (d *Device) Close() error {
	d.transferMu.Lock()
	already := d.closed.Swap(true)
	d.transferMu.Unlock()
	if already {
		return nil
	}
	// Suspended downloads observe the closed flag when they next wake.
	// Teardown must not start while one still holds device objects.
	d.transfers.Wait()
	_, err := executor.Sync(d.exec, func() (struct{}, error) {
		d.reclaim()
		d.be.Close()
		return struct{}{}, nil
	})
	d.exec.Close()
	Logger().Info("accel: device closed", "backend", d.be.Name())
	return err
}
