// GPU-accelerated broad phase for batched voxel queries
package compute

import (
	"fmt"
	"sync"

	"buoyancy3d/internal/physics"

	"github.com/cogentcore/webgpu/wgpu"
)

// BroadPhase reports every (query, target) AABB overlap on the GPU. It
// implements physics.BroadPhase and is safe for concurrent use; dispatches are
// serialised.
type BroadPhase struct {
	system   *System
	pipeline *Pipeline

	mu           sync.Mutex
	queryBuffer  *Buffer // Input: voxel boxes
	targetBuffer *Buffer // Input: collider boxes
	pairBuffer   *Buffer // Output: overlapping pairs
	countBuffer  *Buffer // Output: number of pairs found
	paramBuffer  *Buffer // Uniform: counts

	maxPairs uint32
}

// gpuBox is an AABB padded to WGSL's vec3 alignment.
type gpuBox struct {
	MinX, MinY, MinZ, _ float32
	MaxX, MaxY, MaxZ, _ float32
}

type gpuParams struct {
	QueryCount  uint32
	TargetCount uint32
	MaxPairs    uint32
	_           uint32
}

const boxSize = 32
const pairSize = 8

const broadPhaseShader = `
// One thread per query box, tested against every target box.
// Touching boxes overlap, matching the CPU test.

struct Box {
    lo: vec3<f32>,
    hi: vec3<f32>,
}

struct Pair {
    a: u32,
    b: u32,
}

struct Params {
    queryCount: u32,
    targetCount: u32,
    maxPairs: u32,
    pad: u32,
}

@group(0) @binding(0) var<storage, read> queries: array<Box>;
@group(0) @binding(1) var<storage, read> colliders: array<Box>;
@group(0) @binding(2) var<storage, read_write> pairs: array<Pair>;
@group(0) @binding(3) var<storage, read_write> pairCount: atomic<u32>;
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let i = global_id.x;
    if (i >= params.queryCount) {
        return;
    }

    let q = queries[i];
    for (var j = 0u; j < params.targetCount; j = j + 1u) {
        let t = colliders[j];
        if (all(q.lo <= t.hi) && all(q.hi >= t.lo)) {
            let idx = atomicAdd(&pairCount, 1u);
            // Keep counting past the end so the host can detect overflow
            if (idx < params.maxPairs) {
                pairs[idx] = Pair(i, j);
            }
        }
    }
}
`

// NewBroadPhase compiles the overlap shader. maxPairs bounds the output of a
// single call; a batch producing more fails so the caller can fall back.
func NewBroadPhase(maxPairs uint32) (*BroadPhase, error) {
	sys := Get()
	if sys == nil {
		return nil, ErrUnavailable
	}

	pipeline, err := sys.CreatePipeline("voxel_broadphase", broadPhaseShader, "main")
	if err != nil {
		return nil, err
	}

	bp := &BroadPhase{system: sys, pipeline: pipeline, maxPairs: maxPairs}

	if bp.pairBuffer, err = sys.CreateBuffer("pairs", uint64(maxPairs)*pairSize,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc); err != nil {
		return nil, err
	}
	if bp.countBuffer, err = sys.CreateBuffer("pairCount", 4,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst); err != nil {
		bp.Release()
		return nil, err
	}
	if bp.paramBuffer, err = sys.CreateBuffer("params", 16,
		wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst); err != nil {
		bp.Release()
		return nil, err
	}
	return bp, nil
}

// OverlapPairs returns (query index, target index) for every overlapping pair.
func (bp *BroadPhase) OverlapPairs(queries, targets []physics.AABB) ([][2]uint32, error) {
	if len(queries) == 0 || len(targets) == 0 {
		return nil, nil
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	var err error
	if bp.queryBuffer, err = bp.ensure(bp.queryBuffer, "queries", len(queries)); err != nil {
		return nil, err
	}
	if bp.targetBuffer, err = bp.ensure(bp.targetBuffer, "targets", len(targets)); err != nil {
		return nil, err
	}

	bp.system.WriteBuffer(bp.queryBuffer, 0, ToBytes(packBoxes(queries)))
	bp.system.WriteBuffer(bp.targetBuffer, 0, ToBytes(packBoxes(targets)))
	bp.system.WriteBuffer(bp.countBuffer, 0, ToBytes([]uint32{0}))
	bp.system.WriteBuffer(bp.paramBuffer, 0, ToBytes([]gpuParams{{
		QueryCount:  uint32(len(queries)),
		TargetCount: uint32(len(targets)),
		MaxPairs:    bp.maxPairs,
	}}))

	err = bp.system.Dispatch(DispatchParams{
		Pipeline:    bp.pipeline,
		Buffers:     []*Buffer{bp.queryBuffer, bp.targetBuffer, bp.pairBuffer, bp.countBuffer, bp.paramBuffer},
		WorkgroupsX: (uint32(len(queries)) + 255) / 256,
	})
	if err != nil {
		return nil, err
	}

	countData, err := bp.system.ReadBuffer(bp.countBuffer, 4)
	if err != nil {
		return nil, err
	}
	pairCount := toSlice[uint32](countData)[0]
	if pairCount == 0 {
		return nil, nil
	}
	if pairCount > bp.maxPairs {
		return nil, fmt.Errorf("compute: %d overlaps exceed pair buffer of %d", pairCount, bp.maxPairs)
	}

	pairData, err := bp.system.ReadBuffer(bp.pairBuffer, uint64(pairCount)*pairSize)
	if err != nil {
		return nil, err
	}
	return unpackPairs(pairData, pairCount), nil
}

// ensure returns a storage buffer holding at least n boxes, reallocating
// with headroom when buf is too small.
func (bp *BroadPhase) ensure(buf *Buffer, label string, n int) (*Buffer, error) {
	need := uint64(n) * boxSize
	if buf != nil && buf.size >= need {
		return buf, nil
	}
	if buf != nil {
		buf.Release()
	}
	return bp.system.CreateBuffer(label, need+need/2, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
}

func packBoxes(boxes []physics.AABB) []gpuBox {
	out := make([]gpuBox, len(boxes))
	for i, b := range boxes {
		out[i] = gpuBox{
			MinX: b.Min.X(), MinY: b.Min.Y(), MinZ: b.Min.Z(),
			MaxX: b.Max.X(), MaxY: b.Max.Y(), MaxZ: b.Max.Z(),
		}
	}
	return out
}

func unpackPairs(data []byte, count uint32) [][2]uint32 {
	raw := toSlice[uint32](data)
	if n := uint32(len(raw) / 2); count > n {
		count = n
	}
	pairs := make([][2]uint32, count)
	for i := range pairs {
		pairs[i] = [2]uint32{raw[2*i], raw[2*i+1]}
	}
	return pairs
}

// Release frees GPU resources.
func (bp *BroadPhase) Release() {
	for _, b := range []*Buffer{bp.queryBuffer, bp.targetBuffer, bp.pairBuffer, bp.countBuffer, bp.paramBuffer} {
		if b != nil {
			b.Release()
		}
	}
}

var _ physics.BroadPhase = (*BroadPhase)(nil)
