package accel

import (
	"bytes"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobroadcast/accel/backend"
	"github.com/gobroadcast/accel/internal/executor"
)

func openNull(t *testing.T) *Device {
	t.Helper()
	d, err := Open(Config{Backend: backend.BackendNull})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(Config{Backend: "no-such-backend"}); err == nil {
		t.Fatal("Open with unknown backend succeeded")
	}
}

func TestCreateTextureValidation(t *testing.T) {
	d := openNull(t)

	tests := []struct {
		name         string
		w, h, stride int
	}{
		{"zero width", 0, 10, 4},
		{"zero height", 10, 0, 4},
		{"negative width", -1, 10, 4},
		{"stride zero", 10, 10, 0},
		{"stride five", 10, 10, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.CreateTexture(tt.w, tt.h, tt.stride, Depth8)
			if !errors.Is(err, ErrInvalidDimensions) {
				t.Fatalf("err = %v; want ErrInvalidDimensions", err)
			}
		})
	}
}

func TestCreateTextureShape(t *testing.T) {
	d := openNull(t)

	tex, err := d.CreateTexture(1920, 1080, 4, Depth16)
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()

	if tex.Width() != 1920 || tex.Height() != 1080 || tex.Stride() != 4 || tex.Depth() != Depth16 {
		t.Fatalf("shape = %dx%d stride %d %v", tex.Width(), tex.Height(), tex.Stride(), tex.Depth())
	}
	if want := 1920 * 1080 * 4 * 2; tex.Size() != want {
		t.Fatalf("Size = %d; want %d", tex.Size(), want)
	}
}

func TestTexturePoolReuse(t *testing.T) {
	d := openNull(t)

	tex, err := d.CreateTexture(64, 64, 4, Depth8)
	if err != nil {
		t.Fatal(err)
	}
	img := tex.img
	tex.Release()

	if got := d.Info().TextureCount; got != 1 {
		t.Fatalf("idle textures after release = %d; want 1", got)
	}

	tex2, err := d.CreateTexture(64, 64, 4, Depth8)
	if err != nil {
		t.Fatal(err)
	}
	if tex2.img != img {
		t.Fatal("pooled texture was not reused")
	}
	if got := d.Info().TextureCount; got != 0 {
		t.Fatalf("idle textures after reuse = %d; want 0", got)
	}
	tex2.Release()
}

func TestGCForcesFreshAllocation(t *testing.T) {
	d := openNull(t)

	tex, err := d.CreateTexture(64, 64, 4, Depth8)
	if err != nil {
		t.Fatal(err)
	}
	img := tex.img
	tex.Release()

	if _, err := d.GC().Wait(); err != nil {
		t.Fatal(err)
	}

	tex2, err := d.CreateTexture(64, 64, 4, Depth8)
	if err != nil {
		t.Fatal(err)
	}
	defer tex2.Release()
	if tex2.img == img {
		t.Fatal("texture survived GC")
	}
}

func TestTextureDoubleRelease(t *testing.T) {
	d := openNull(t)

	tex, err := d.CreateTexture(32, 32, 4, Depth8)
	if err != nil {
		t.Fatal(err)
	}
	tex.Release()
	tex.Release()

	if got := d.Info().TextureCount; got != 1 {
		t.Fatalf("idle textures after double release = %d; want 1", got)
	}
}

func TestCreateArrayValidation(t *testing.T) {
	d := openNull(t)

	for _, size := range []int{0, -4} {
		if _, err := d.CreateArray(size); !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("CreateArray(%d): err = %v; want ErrInvalidSize", size, err)
		}
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	d := openNull(t)
	const w, h, stride = 8, 8, 4

	arr, err := d.CreateArray(w * h * stride)
	if err != nil {
		t.Fatal(err)
	}
	for i := range arr.Bytes() {
		arr.Bytes()[i] = byte(i)
	}
	want := append([]byte(nil), arr.Bytes()...)

	tex, err := d.CopyToTexture(arr, w, h, stride, Depth8).Wait()
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()

	down, err := d.CopyFromTexture(tex).Wait()
	if err != nil {
		t.Fatal(err)
	}
	defer down.Release()

	if !bytes.Equal(down.Bytes(), want) {
		t.Fatal("downloaded bytes differ from uploaded")
	}
}

func TestWrapBytesUpload(t *testing.T) {
	d := openNull(t)
	const w, h, stride = 4, 4, 4

	src := make([]byte, w*h*stride)
	for i := range src {
		src[i] = byte(255 - i)
	}

	tex, err := d.CopyToTexture(WrapBytes(src), w, h, stride, Depth8).Wait()
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()

	down, err := d.CopyFromTexture(tex).Wait()
	if err != nil {
		t.Fatal(err)
	}
	defer down.Release()

	if !bytes.Equal(down.Bytes(), src) {
		t.Fatal("downloaded bytes differ from source")
	}
}

func TestCopyToTextureShortSource(t *testing.T) {
	d := openNull(t)

	_, err := d.CopyToTexture(WrapBytes(make([]byte, 10)), 8, 8, 4, Depth8).Wait()
	if !errors.Is(err, ErrShortSource) {
		t.Fatalf("err = %v; want ErrShortSource", err)
	}
}

func TestCopyFromReleasedTexture(t *testing.T) {
	d := openNull(t)

	tex, err := d.CreateTexture(8, 8, 4, Depth8)
	if err != nil {
		t.Fatal(err)
	}
	tex.Release()

	if _, err := d.CopyFromTexture(tex).Wait(); !errors.Is(err, ErrTextureReleased) {
		t.Fatalf("err = %v; want ErrTextureReleased", err)
	}
}

func TestInfoAndGC(t *testing.T) {
	d := openNull(t)

	tex, err := d.CreateTexture(16, 16, 4, Depth8)
	if err != nil {
		t.Fatal(err)
	}
	tex.Release()

	arr, err := d.CreateArray(512)
	if err != nil {
		t.Fatal(err)
	}
	arr.Release()

	info := d.Info()
	if info.TextureCount != 1 || info.TextureBytes != 16*16*4 {
		t.Fatalf("texture stats = %d, %d bytes", info.TextureCount, info.TextureBytes)
	}
	if info.HostWriteCount != 1 || info.HostWriteBytes != 512 {
		t.Fatalf("host write stats = %d, %d bytes", info.HostWriteCount, info.HostWriteBytes)
	}
	if !strings.Contains(info.String(), backend.BackendNull) {
		t.Fatalf("Info.String() = %q; missing backend name", info.String())
	}

	if _, err := d.GC().Wait(); err != nil {
		t.Fatal(err)
	}
	info = d.Info()
	if info.TextureCount != 0 || info.HostWriteCount != 0 || info.HostReadCount != 0 {
		t.Fatalf("pools not empty after GC: %+v", info)
	}
}

func TestDispatchSequencing(t *testing.T) {
	d := openNull(t)

	ran := false
	d.Dispatch(func() { ran = true })

	// CreateTexture queues behind the dispatch and flushes it.
	tex, err := d.CreateTexture(8, 8, 4, Depth8)
	if err != nil {
		t.Fatal(err)
	}
	tex.Release()

	if !ran {
		t.Fatal("dispatched work did not run before later sync work")
	}
}

func TestCloseIdempotent(t *testing.T) {
	d, err := Open(Config{Backend: backend.BackendNull})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := d.CreateTexture(8, 8, 4, Depth8); !errors.Is(err, ErrDeviceClosed) {
		t.Fatalf("CreateTexture after Close: err = %v; want ErrDeviceClosed", err)
	}
	if _, err := d.CreateArray(64); !errors.Is(err, ErrDeviceClosed) {
		t.Fatalf("CreateArray after Close: err = %v; want ErrDeviceClosed", err)
	}
	_, err = d.CopyToTexture(WrapBytes(make([]byte, 256)), 8, 8, 4, Depth8).Wait()
	if !errors.Is(err, executor.ErrClosed) && !errors.Is(err, ErrDeviceClosed) {
		t.Fatalf("CopyToTexture after Close: err = %v", err)
	}
}

// stallBackend wraps the null backend with a download fence that never
// signals and records any backend call landing after Close.
type stallBackend struct {
	*backend.NullBackend
	torndown atomic.Bool
	lateCall atomic.Bool
}

func (b *stallBackend) Close() {
	b.torndown.Store(true)
	b.NullBackend.Close()
}

func (b *stallBackend) CopyImageToBuffer(src backend.Image, dst backend.HostBuffer) (backend.Completion, error) {
	if _, err := b.NullBackend.CopyImageToBuffer(src, dst); err != nil {
		return nil, err
	}
	return &stallCompletion{b: b}, nil
}

type stallCompletion struct {
	b *stallBackend
}

func (c *stallCompletion) Done() (bool, error) {
	if c.b.torndown.Load() {
		c.b.lateCall.Store(true)
	}
	return false, nil
}

func (c *stallCompletion) Release() {
	if c.b.torndown.Load() {
		c.b.lateCall.Store(true)
	}
}

func TestCloseWaitsForInFlightDownload(t *testing.T) {
	sb := &stallBackend{NullBackend: backend.NewNullBackend()}
	backend.Register("stall", func() backend.Backend { return sb })
	defer backend.Unregister("stall")

	d, err := Open(Config{Backend: "stall", PollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	tex, err := d.CreateTexture(8, 8, 4, Depth8)
	if err != nil {
		t.Fatal(err)
	}

	fut := d.CopyFromTexture(tex)
	time.Sleep(3 * time.Millisecond) // let the download reach its poll loop

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := fut.Wait(); !errors.Is(err, ErrDeviceClosed) {
		t.Fatalf("download across Close: err = %v; want ErrDeviceClosed", err)
	}
	if sb.lateCall.Load() {
		t.Fatal("suspended download touched the backend after teardown")
	}
}

func TestCopyFromTextureAfterClose(t *testing.T) {
	d, err := Open(Config{Backend: backend.BackendNull})
	if err != nil {
		t.Fatal(err)
	}
	tex, err := d.CreateTexture(8, 8, 4, Depth8)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = d.CopyFromTexture(tex).Wait()
	if !errors.Is(err, ErrDeviceClosed) && !errors.Is(err, executor.ErrClosed) {
		t.Fatalf("CopyFromTexture after Close: err = %v", err)
	}
}
