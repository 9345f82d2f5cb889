// Package vulkan provides the Vulkan backend for accel.
//
// Importing this package registers the backend under the name "vulkan":
//
//	import _ "github.com/gobroadcast/accel/vulkan"
//
// All entry points except AllocBuffer are serialized by the device
// executor: exactly one runs at a time, each on a goroutine locked to its
// OS thread. No call in this package needs its own locking.
package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/gobroadcast/accel/backend"
)

func init() {
	backend.Register(backend.BackendVulkan, func() backend.Backend {
		return &Backend{}
	})
}

// minAPIVersion is the Vulkan version the backend is written against.
// Physical devices reporting less are skipped.
var minAPIVersion = uint32(vk.MakeVersion(1, 3, 0))

// Backend implements backend.Backend on a Vulkan 1.3 device.
type Backend struct {
	instance vk.Instance
	phys     vk.PhysicalDevice
	device   vk.Device
	queue    vk.Queue
	cmdPool  vk.CommandPool

	queueFamily uint32
	memProps    vk.PhysicalDeviceMemoryProperties

	initialized bool
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendVulkan }

// check converts a non-success Vulkan result into an error naming the
// failed call.
func check(ret vk.Result, op string) error {
	if ret != vk.Success {
		return fmt.Errorf("vulkan: %s: %w", op, vk.Error(ret))
	}
	return nil
}

// Init loads the Vulkan library, creates an instance, picks the first
// physical device meeting the minimum API version with a graphics queue,
// and creates the logical device, queue, and command pool.
//
// Any failure here is fatal for the backend; there is no degraded mode.
func (b *Backend) Init() error {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return fmt.Errorf("vulkan: load library: %w", err)
	}
	if err := vk.Init(); err != nil {
		return fmt.Errorf("vulkan: init bindings: %w", err)
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			PApplicationName: "accel\x00",
			PEngineName:      "accel\x00",
			ApiVersion:       minAPIVersion,
		},
	}, nil, &instance)
	if err := check(ret, "create instance"); err != nil {
		return err
	}
	b.instance = instance
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(b.instance, nil)
		return fmt.Errorf("vulkan: load instance procs: %w", err)
	}

	if err := b.pickPhysicalDevice(); err != nil {
		vk.DestroyInstance(b.instance, nil)
		return err
	}

	var device vk.Device
	ret = vk.CreateDevice(b.phys, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: b.queueFamily,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
	}, nil, &device)
	if err := check(ret, "create device"); err != nil {
		vk.DestroyInstance(b.instance, nil)
		return err
	}
	b.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(b.device, b.queueFamily, 0, &queue)
	b.queue = queue

	var cmdPool vk.CommandPool
	ret = vk.CreateCommandPool(b.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: b.queueFamily,
	}, nil, &cmdPool)
	if err := check(ret, "create command pool"); err != nil {
		vk.DestroyDevice(b.device, nil)
		vk.DestroyInstance(b.instance, nil)
		return err
	}
	b.cmdPool = cmdPool

	vk.GetPhysicalDeviceMemoryProperties(b.phys, &b.memProps)
	b.memProps.Deref()

	b.initialized = true
	return nil
}

// pickPhysicalDevice selects the first device meeting minAPIVersion that
// has a graphics-capable queue family.
func (b *Backend) pickPhysicalDevice() error {
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(b.instance, &count, nil), "enumerate devices"); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("vulkan: no physical devices")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(b.instance, &count, devices), "enumerate devices"); err != nil {
		return err
	}

	for _, dev := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(dev, &props)
		props.Deref()
		if props.ApiVersion < minAPIVersion {
			continue
		}

		family, ok := graphicsQueueFamily(dev)
		if !ok {
			continue
		}

		b.phys = dev
		b.queueFamily = family
		return nil
	}
	return fmt.Errorf("vulkan: no device supports version %d.%d with a graphics queue",
		minAPIVersion>>22, (minAPIVersion>>12)&0x3ff)
}

// graphicsQueueFamily returns the index of the first graphics-capable
// queue family of dev.
func graphicsQueueFamily(dev vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &count, families)

	for i := range families {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

// findMemoryType returns the index of a memory type allowed by typeBits
// whose property flags equal exactly the requested flags. No fallback is
// attempted; a device without the requested combination cannot run the
// transfer paths this backend needs.
func (b *Backend) findMemoryType(typeBits uint32, flags vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < b.memProps.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		mt := b.memProps.MemoryTypes[i]
		mt.Deref()
		if mt.PropertyFlags == flags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: flags 0x%x", backend.ErrNoMemoryType, flags)
}

// Close waits for the device to go idle and destroys the command pool,
// device, and instance. Images and buffers not destroyed individually are
// reclaimed with the device.
func (b *Backend) Close() {
	if !b.initialized {
		return
	}
	vk.DeviceWaitIdle(b.device)
	vk.DestroyCommandPool(b.device, b.cmdPool, nil)
	vk.DestroyDevice(b.device, nil)
	vk.DestroyInstance(b.instance, nil)
	b.initialized = false
}
