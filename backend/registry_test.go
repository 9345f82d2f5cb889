package backend

import "testing"

type fakeBackend struct{ name string }

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Init() error  { return nil }
func (f *fakeBackend) Close()       {}
func (f *fakeBackend) CreateImage(int, int, int, BitDepth) (Image, error) {
	return nil, nil
}
func (f *fakeBackend) ClearImage(Image) error { return nil }
func (f *fakeBackend) AllocBuffer(int, bool) (HostBuffer, error) {
	return nil, nil
}
func (f *fakeBackend) CopyBufferToImage(HostBuffer, Image) error { return nil }
func (f *fakeBackend) CopyImageToBuffer(Image, HostBuffer) (Completion, error) {
	return nil, nil
}

func TestRegisterAndGet(t *testing.T) {
	Register("fake", func() Backend { return &fakeBackend{name: "fake"} })
	defer Unregister("fake")

	b := Get("fake")
	if b == nil || b.Name() != "fake" {
		t.Fatalf("Get(fake) = %v", b)
	}
	if !IsRegistered("fake") {
		t.Fatal("IsRegistered(fake) = false")
	}
}

func TestGetUnknown(t *testing.T) {
	if b := Get("no-such-backend"); b != nil {
		t.Fatalf("Get(unknown) = %v; want nil", b)
	}
}

func TestNullAlwaysAvailable(t *testing.T) {
	if !IsRegistered(BackendNull) {
		t.Fatal("null backend not registered")
	}
	found := false
	for _, name := range Available() {
		if name == BackendNull {
			found = true
		}
	}
	if !found {
		t.Fatalf("Available() = %v; missing %q", Available(), BackendNull)
	}
}

func TestDefaultFallsBackToNull(t *testing.T) {
	// With only the null backend registered, priority selection lands on it.
	b := Default()
	if b == nil {
		t.Fatal("Default() = nil")
	}
	if b.Name() != BackendNull {
		t.Skipf("higher-priority backend %q registered", b.Name())
	}
}
