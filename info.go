package accel

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
)

// TexturePoolStat describes one idle texture pool bucket.
type TexturePoolStat struct {
	Width  int
	Height int
	Stride int
	Depth  BitDepth
	Count  int
	Bytes  int
}

// HostPoolStat describes one idle host buffer pool bucket.
type HostPoolStat struct {
	Size  int
	Write bool
	Count int
	Bytes int
}

// Info is a point-in-time snapshot of a device's pooled resources.
// Counts cover idle resources only; resources currently held by callers are
// not included.
type Info struct {
	Backend string

	TexturePools []TexturePoolStat
	HostPools    []HostPoolStat

	TextureCount int
	TextureBytes int

	HostWriteCount int
	HostWriteBytes int
	HostReadCount  int
	HostReadBytes  int
}

// String renders a one-line summary suitable for logs and status displays.
func (i Info) String() string {
	return fmt.Sprintf(
		"accel[%s] textures=%d (%s) host-write=%d (%s) host-read=%d (%s)",
		i.Backend,
		i.TextureCount, humanize.IBytes(uint64(i.TextureBytes)),
		i.HostWriteCount, humanize.IBytes(uint64(i.HostWriteBytes)),
		i.HostReadCount, humanize.IBytes(uint64(i.HostReadBytes)),
	)
}

// sortStats orders bucket stats for deterministic output.
func sortStats(info *Info) {
	sort.Slice(info.TexturePools, func(a, b int) bool {
		x, y := info.TexturePools[a], info.TexturePools[b]
		if x.Width != y.Width {
			return x.Width < y.Width
		}
		if x.Height != y.Height {
			return x.Height < y.Height
		}
		if x.Stride != y.Stride {
			return x.Stride < y.Stride
		}
		return x.Depth < y.Depth
	})
	sort.Slice(info.HostPools, func(a, b int) bool {
		x, y := info.HostPools[a], info.HostPools[b]
		if x.Size != y.Size {
			return x.Size < y.Size
		}
		return !x.Write && y.Write
	})
}
