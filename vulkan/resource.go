package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/gobroadcast/accel/backend"
)

// imageFormat maps a bit depth class to the RGBA integer format used for
// all device images. Channel count below four is a host-side packing
// concern; the device image is always four-channel.
func imageFormat(depth backend.BitDepth) vk.Format {
	if depth == backend.Depth16 {
		return vk.FormatR16g16b16a16Uint
	}
	return vk.FormatR8g8b8a8Uint
}

// vkImage is a device-local image plus its backing allocation. layout
// tracks the current image layout so transfer commands can transition from
// the real previous state instead of discarding contents.
type vkImage struct {
	b      *Backend
	image  vk.Image
	memory vk.DeviceMemory
	width  uint32
	height uint32
	layout vk.ImageLayout
}

func (img *vkImage) Destroy() {
	vk.DestroyImage(img.b.device, img.image, nil)
	vk.FreeMemory(img.b.device, img.memory, nil)
}

// vkBuffer is host-visible memory mapped for its whole lifetime. HostCoherent
// memory keeps the mapping valid without flush/invalidate calls.
type vkBuffer struct {
	b      *Backend
	buffer vk.Buffer
	memory vk.DeviceMemory
	mapped []byte
}

func (buf *vkBuffer) Bytes() []byte { return buf.mapped }

func (buf *vkBuffer) Destroy() {
	vk.UnmapMemory(buf.b.device, buf.memory)
	vk.DestroyBuffer(buf.b.device, buf.buffer, nil)
	vk.FreeMemory(buf.b.device, buf.memory, nil)
	buf.mapped = nil
}

// CreateImage allocates a device-local RGBA integer image.
func (b *Backend) CreateImage(width, height, stride int, depth backend.BitDepth) (backend.Image, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}

	var image vk.Image
	ret := vk.CreateImage(b.device, &vk.ImageCreateInfo{
		SType:       vk.StructureTypeImageCreateInfo,
		ImageType:   vk.ImageType2d,
		Format:      imageFormat(depth),
		Extent:      vk.Extent3D{Width: uint32(width), Height: uint32(height), Depth: 1},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage: vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit |
			vk.ImageUsageTransferDstBit |
			vk.ImageUsageSampledBit |
			vk.ImageUsageStorageBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &image)
	if err := check(ret, "create image"); err != nil {
		return nil, err
	}

	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.device, image, &memReq)
	memReq.Deref()

	memory, err := b.allocate(memReq, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(b.device, image, nil)
		return nil, err
	}
	if err := check(vk.BindImageMemory(b.device, image, memory, 0), "bind image memory"); err != nil {
		vk.DestroyImage(b.device, image, nil)
		vk.FreeMemory(b.device, memory, nil)
		return nil, err
	}

	return &vkImage{
		b:      b,
		image:  image,
		memory: memory,
		width:  uint32(width),
		height: uint32(height),
		layout: vk.ImageLayoutUndefined,
	}, nil
}

// ClearImage zeroes the image on the device. The zero value of
// vk.ClearColorValue is zero in every union interpretation, which for the
// integer formats used here is transparent black.
func (b *Backend) ClearImage(img backend.Image) error {
	vi, ok := img.(*vkImage)
	if !ok {
		return fmt.Errorf("vulkan: foreign image %T", img)
	}

	cmd, err := b.beginCommands()
	if err != nil {
		return err
	}
	recordTransition(cmd, vi, vk.ImageLayoutTransferDstOptimal)

	var clearValue vk.ClearColorValue
	vk.CmdClearColorImage(cmd, vi.image, vk.ImageLayoutTransferDstOptimal,
		&clearValue, 1, []vk.ImageSubresourceRange{fullColorRange()})

	return b.submitAndWait(cmd, "clear image")
}

// allocate picks a memory type for memReq with exactly the given property
// flags and allocates from it.
func (b *Backend) allocate(memReq vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	index, err := b.findMemoryType(memReq.MemoryTypeBits, flags)
	if err != nil {
		return vk.NullDeviceMemory, err
	}

	var memory vk.DeviceMemory
	ret := vk.AllocateMemory(b.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: index,
	}, nil, &memory)
	if err := check(ret, "allocate memory"); err != nil {
		return vk.NullDeviceMemory, err
	}
	return memory, nil
}

// AllocBuffer allocates a persistently mapped host-visible transfer buffer.
// write selects a transfer source (upload), otherwise a transfer
// destination (download).
func (b *Backend) AllocBuffer(size int, write bool) (backend.HostBuffer, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}

	usage := vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	if write {
		usage = vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}

	var buffer vk.Buffer
	ret := vk.CreateBuffer(b.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer)
	if err := check(ret, "create buffer"); err != nil {
		return nil, err
	}

	var memReq vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device, buffer, &memReq)
	memReq.Deref()

	memory, err := b.allocate(memReq, vk.MemoryPropertyFlags(
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(b.device, buffer, nil)
		return nil, err
	}
	if err := check(vk.BindBufferMemory(b.device, buffer, memory, 0), "bind buffer memory"); err != nil {
		vk.DestroyBuffer(b.device, buffer, nil)
		vk.FreeMemory(b.device, memory, nil)
		return nil, err
	}

	var ptr unsafe.Pointer
	if err := check(vk.MapMemory(b.device, memory, 0, vk.DeviceSize(size), 0, &ptr), "map memory"); err != nil {
		vk.DestroyBuffer(b.device, buffer, nil)
		vk.FreeMemory(b.device, memory, nil)
		return nil, err
	}

	return &vkBuffer{
		b:      b,
		buffer: buffer,
		memory: memory,
		mapped: unsafe.Slice((*byte)(ptr), size),
	}, nil
}
