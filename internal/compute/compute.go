// Package compute provides GPU compute shader functionality via WebGPU/Metal.
// This runs completely independently of raylib's OpenGL rendering.
//
// Its only pipeline is the BroadPhase kernel, which the physics world uses to
// pair voxel query boxes with colliders when a solidity batch is large.
package compute

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrUnavailable is returned when no compute device has been initialised.
var ErrUnavailable = errors.New("compute: no GPU device")

// System manages the WebGPU device and its compiled pipelines.
// Initialize once at startup.
type System struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Cache of compiled compute pipelines
	pipelines map[string]*Pipeline
	mu        sync.RWMutex
}

// Pipeline represents a compiled compute shader ready to dispatch.
type Pipeline struct {
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout
}

// Buffer wraps a GPU buffer for compute operations.
type Buffer struct {
	buffer *wgpu.Buffer
	size   uint64
	usage  wgpu.BufferUsage
}

var (
	globalSystem *System
	initOnce     sync.Once
	initErr      error
)

// AdapterInfo contains GPU information.
type AdapterInfo struct {
	Name       string
	Vendor     string
	Backend    string
	DeviceType string
	Driver     string
}

func (i AdapterInfo) String() string {
	return fmt.Sprintf("%s | %s | %s | %s", i.Backend, i.Vendor, i.Name, i.DeviceType)
}

// Initialize sets up the compute system. Safe to call multiple times.
func Initialize() (info AdapterInfo, err error) {
	initOnce.Do(func() {
		globalSystem, initErr = newSystem()
	})
	if initErr != nil {
		return AdapterInfo{}, initErr
	}
	adapterInfo := globalSystem.adapter.GetInfo()
	return AdapterInfo{
		Name:       adapterInfo.Name,
		Vendor:     adapterInfo.VendorName,
		Backend:    adapterInfo.BackendType.String(),
		DeviceType: adapterInfo.AdapterType.String(),
		Driver:     adapterInfo.DriverDescription,
	}, nil
}

// Get returns the global compute system, or nil before a successful Initialize.
func Get() *System {
	return globalSystem
}

func newSystem() (*System, error) {
	instance := wgpu.CreateInstance(nil)

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("failed to get GPU adapter: %w", err)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("failed to get GPU device: %w", err)
	}

	return &System{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     device.GetQueue(),
		pipelines: make(map[string]*Pipeline),
	}, nil
}

// CreatePipeline compiles a compute shader and caches it by name.
func (s *System) CreatePipeline(name, wgslCode, entryPoint string) (*Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pipelines[name]; ok {
		return p, nil
	}

	shaderModule, err := s.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: wgslCode,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create shader module: %w", err)
	}

	pipeline, err := s.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: name,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		shaderModule.Release()
		return nil, fmt.Errorf("failed to create compute pipeline: %w", err)
	}

	p := &Pipeline{
		shader:   shaderModule,
		pipeline: pipeline,
		layout:   pipeline.GetBindGroupLayout(0),
	}
	s.pipelines[name] = p
	return p, nil
}

// CreateBuffer creates a GPU buffer for compute operations.
func (s *System) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*Buffer, error) {
	buf, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}
	return &Buffer{buffer: buf, size: size, usage: usage}, nil
}

// WriteBuffer uploads data to a GPU buffer.
func (s *System) WriteBuffer(buf *Buffer, offset uint64, data []byte) {
	s.queue.WriteBuffer(buf.buffer, offset, data)
}

// DispatchParams binds Buffers in @binding order and sizes the grid.
type DispatchParams struct {
	Pipeline    *Pipeline
	Buffers     []*Buffer
	WorkgroupsX uint32
	WorkgroupsY uint32 // default 1
	WorkgroupsZ uint32 // default 1
}

// Dispatch executes a compute shader.
func (s *System) Dispatch(params DispatchParams) error {
	if params.WorkgroupsY == 0 {
		params.WorkgroupsY = 1
	}
	if params.WorkgroupsZ == 0 {
		params.WorkgroupsZ = 1
	}

	entries := make([]wgpu.BindGroupEntry, len(params.Buffers))
	for i, buf := range params.Buffers {
		entries[i] = wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  buf.buffer,
			Size:    buf.size,
		}
	}

	bindGroup, err := s.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "compute_bind_group",
		Layout:  params.Pipeline.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group: %w", err)
	}
	defer bindGroup.Release()

	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(params.Pipeline.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(params.WorkgroupsX, params.WorkgroupsY, params.WorkgroupsZ)
	pass.End()
	pass.Release()

	commands, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish command encoder: %w", err)
	}
	defer commands.Release()

	s.queue.Submit(commands)
	return nil
}

// ReadBuffer copies the first size bytes of a GPU buffer back to the CPU.
// The buffer must have been created with BufferUsageCopySrc.
func (s *System) ReadBuffer(buf *Buffer, size uint64) ([]byte, error) {
	if size == 0 || size > buf.size {
		size = buf.size
	}
	// WebGPU copies must be 4-byte aligned
	size = (size + 3) &^ 3

	staging, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "staging_read",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create staging buffer: %w", err)
	}
	defer staging.Release()

	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(buf.buffer, 0, staging, 0, size)
	commands, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finish encoder: %w", err)
	}
	s.queue.Submit(commands)
	commands.Release()

	done := make(chan error, 1)
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			done <- fmt.Errorf("failed to map buffer: %v", status)
		} else {
			done <- nil
		}
	})
	if err != nil {
		return nil, err
	}

	s.device.Poll(true, nil)
	if err := <-done; err != nil {
		return nil, err
	}

	mapped := staging.GetMappedRange(0, uint(size))
	result := make([]byte, len(mapped))
	copy(result, mapped)
	staging.Unmap()

	return result, nil
}

// Release frees all GPU resources.
func (s *System) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pipelines {
		p.layout.Release()
		p.pipeline.Release()
		p.shader.Release()
	}
	s.pipelines = nil

	s.queue.Release()
	s.device.Release()
	s.adapter.Release()
	s.instance.Release()
}

// Release frees the buffer's GPU memory.
func (b *Buffer) Release() {
	b.buffer.Release()
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.size
}

// ToBytes converts a slice to bytes for upload.
func ToBytes[T any](data []T) []byte {
	return wgpu.ToBytes(data)
}

func toSlice[T any](data []byte) []T {
	return wgpu.FromBytes[T](data)
}
