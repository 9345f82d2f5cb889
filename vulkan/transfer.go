package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/gobroadcast/accel/backend"
)

// fullColorRange addresses the whole single-mip, single-layer color image.
func fullColorRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: 1,
		LayerCount: 1,
	}
}

// beginCommands allocates a one-time primary command buffer and begins
// recording.
func (b *Backend) beginCommands() (vk.CommandBuffer, error) {
	cmds := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(b.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds)
	if err := check(ret, "allocate command buffer"); err != nil {
		return nil, err
	}

	ret = vk.BeginCommandBuffer(cmds[0], &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if err := check(ret, "begin command buffer"); err != nil {
		b.freeCommands(cmds[0])
		return nil, err
	}
	return cmds[0], nil
}

func (b *Backend) freeCommands(cmd vk.CommandBuffer) {
	vk.FreeCommandBuffers(b.device, b.cmdPool, 1, []vk.CommandBuffer{cmd})
}

// submitAndWait ends recording, submits without a fence, and blocks until
// the queue drains. Used for the synchronous paths (clear, upload) where
// the caller needs the buffer reusable on return.
func (b *Backend) submitAndWait(cmd vk.CommandBuffer, op string) error {
	defer b.freeCommands(cmd)

	if err := check(vk.EndCommandBuffer(cmd), "end command buffer"); err != nil {
		return err
	}
	ret := vk.QueueSubmit(b.queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}}, vk.NullFence)
	if err := check(ret, op); err != nil {
		return err
	}
	return check(vk.QueueWaitIdle(b.queue), op)
}

// layoutAccess returns the access mask corresponding to what a transfer
// command did, or will do, to an image in the given layout.
func layoutAccess(layout vk.ImageLayout) vk.AccessFlags {
	switch layout {
	case vk.ImageLayoutTransferDstOptimal:
		return vk.AccessFlags(vk.AccessTransferWriteBit)
	case vk.ImageLayoutTransferSrcOptimal:
		return vk.AccessFlags(vk.AccessTransferReadBit)
	default:
		return 0
	}
}

// recordTransition records a layout barrier from the image's tracked layout
// to newLayout and updates the tracked layout. Transitions from Undefined
// discard contents, which only ever happens on a freshly created image.
func recordTransition(cmd vk.CommandBuffer, img *vkImage, newLayout vk.ImageLayout) {
	if img.layout == newLayout {
		return
	}

	srcStage := vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	if img.layout == vk.ImageLayoutUndefined {
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}

	vk.CmdPipelineBarrier(cmd,
		srcStage,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, 0, nil, 0, nil,
		1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       layoutAccess(img.layout),
			DstAccessMask:       layoutAccess(newLayout),
			OldLayout:           img.layout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.image,
			SubresourceRange:    fullColorRange(),
		}})
	img.layout = newLayout
}

// CopyBufferToImage records and submits an upload, waiting for completion
// so the staging buffer is reusable on return.
func (b *Backend) CopyBufferToImage(src backend.HostBuffer, dst backend.Image) error {
	vb, ok := src.(*vkBuffer)
	if !ok {
		return fmt.Errorf("vulkan: foreign buffer %T", src)
	}
	vi, ok := dst.(*vkImage)
	if !ok {
		return fmt.Errorf("vulkan: foreign image %T", dst)
	}

	cmd, err := b.beginCommands()
	if err != nil {
		return err
	}
	recordTransition(cmd, vi, vk.ImageLayoutTransferDstOptimal)

	vk.CmdCopyBufferToImage(cmd, vb.buffer, vi.image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: vi.width, Height: vi.height, Depth: 1},
		}})

	return b.submitAndWait(cmd, "copy buffer to image")
}

// vkCompletion is a submitted download: a fence plus the command buffer to
// reclaim once it signals.
type vkCompletion struct {
	b     *Backend
	fence vk.Fence
	cmd   vk.CommandBuffer
}

// Done polls the fence without blocking.
func (c *vkCompletion) Done() (bool, error) {
	switch ret := vk.GetFenceStatus(c.b.device, c.fence); ret {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, check(ret, "fence status")
	}
}

// Release frees the fence and command buffer.
func (c *vkCompletion) Release() {
	vk.DestroyFence(c.b.device, c.fence, nil)
	c.b.freeCommands(c.cmd)
}

// CopyImageToBuffer records a download and submits it with a fence,
// returning immediately. The destination bytes are defined once the fence
// signals; HostCoherent memory needs no invalidate.
func (b *Backend) CopyImageToBuffer(src backend.Image, dst backend.HostBuffer) (backend.Completion, error) {
	vi, ok := src.(*vkImage)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign image %T", src)
	}
	vb, ok := dst.(*vkBuffer)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign buffer %T", dst)
	}

	cmd, err := b.beginCommands()
	if err != nil {
		return nil, err
	}
	recordTransition(cmd, vi, vk.ImageLayoutTransferSrcOptimal)

	vk.CmdCopyImageToBuffer(cmd, vi.image, vk.ImageLayoutTransferSrcOptimal, vb.buffer,
		1, []vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: vi.width, Height: vi.height, Depth: 1},
		}})

	if err := check(vk.EndCommandBuffer(cmd), "end command buffer"); err != nil {
		b.freeCommands(cmd)
		return nil, err
	}

	var fence vk.Fence
	ret := vk.CreateFence(b.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &fence)
	if err := check(ret, "create fence"); err != nil {
		b.freeCommands(cmd)
		return nil, err
	}

	ret = vk.QueueSubmit(b.queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}}, fence)
	if err := check(ret, "copy image to buffer"); err != nil {
		vk.DestroyFence(b.device, fence, nil)
		b.freeCommands(cmd)
		return nil, err
	}

	return &vkCompletion{b: b, fence: fence, cmd: cmd}, nil
}
