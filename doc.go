// Package accel is the GPU-resident resource and transfer core of a
// real-time playout engine.
//
// A Device owns one graphics-API backend and serializes every
// device-affecting call through one executor, which runs them one at a
// time on OS-locked threads. Around it sit shape-keyed pools of
// device textures and host transfer buffers: releasing a texture or buffer
// returns it to its pool bucket instead of freeing it, so steady-state frame
// production allocates nothing. Idle pooled memory is reclaimed only by an
// explicit GC sweep; a missed frame deadline costs more than idle memory.
//
// The upload path (CopyToTexture) stages bytes through a pooled host buffer
// and issues a device-side copy; the download path (CopyFromTexture) submits
// an image-to-buffer copy with a completion fence and polls it on a short
// timer, suspending between polls so the executor stays free for other work.
//
// Backend selection follows the backend registry: the null backend (pure
// host memory) is always available, and importing accel/vulkan registers the
// Vulkan backend:
//
//	import _ "github.com/gobroadcast/accel/vulkan"
package accel
