package renderer

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
)

// ErrNoHostKernel is returned when the headless backend dispatches a pipeline without a host kernel.
var ErrNoHostKernel = errors.New("headless: pipeline has no host kernel")

// hostBuffer is a buffer held in system memory.
type hostBuffer struct {
	label    string
	usage    resource.BufferUsage
	data     []byte
	released bool
}

func (b *hostBuffer) Label() string               { return b.label }
func (b *hostBuffer) Size() uint64                { return uint64(len(b.data)) }
func (b *hostBuffer) Usage() resource.BufferUsage { return b.usage }
func (b *hostBuffer) Release()                    { b.released = true }

// hostTexture is a 2D texture held as four float channels per texel. Stores quantize to the
// texture format so reads observe the same precision a GPU texture would.
type hostTexture struct {
	label         string
	width, height uint32
	format        resource.TextureFormat
	usage         resource.TextureUsage
	texels        []float32
	released      bool
}

var (
	_ resource.Texture   = &hostTexture{}
	_ pipeline.HostImage = &hostTexture{}
)

func (t *hostTexture) Label() string                  { return t.label }
func (t *hostTexture) Width() uint32                  { return t.width }
func (t *hostTexture) Height() uint32                 { return t.height }
func (t *hostTexture) Format() resource.TextureFormat { return t.format }
func (t *hostTexture) Usage() resource.TextureUsage   { return t.usage }
func (t *hostTexture) Release()                       { t.released = true }

func (t *hostTexture) Load(x, y uint32) [4]float32 {
	if x >= t.width || y >= t.height {
		return [4]float32{}
	}
	i := (y*t.width + x) * 4
	return [4]float32(t.texels[i : i+4])
}

func (t *hostTexture) Store(x, y uint32, v [4]float32) {
	if x >= t.width || y >= t.height {
		return
	}
	i := (y*t.width + x) * 4
	for c := range 4 {
		t.texels[i+uint32(c)] = quantize(t.format, v[c])
	}
}

func quantize(format resource.TextureFormat, v float32) float32 {
	switch format {
	case resource.TextureFormatRGBA8Unorm, resource.TextureFormatBGRA8UnormSrgb:
		return float32(unorm8(v)) / 255
	case resource.TextureFormatRGBA16Float:
		return halfToFloat32(float32ToHalf(v))
	case resource.TextureFormatR32Uint:
		return float32(uint32(max(v, 0)))
	default:
		return v
	}
}

func unorm8(v float32) uint8 {
	return uint8(math.Round(float64(min(max(v, 0), 1)) * 255))
}

// float32ToHalf converts to IEEE 754 binary16 with round-to-nearest-even, saturating to infinity.
func float32ToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case bits&0x7fffffff == 0:
		return sign
	case bits>>23&0xff == 0xff:
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mant >> shift)
		rem := mant & (1<<shift - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || (rem == mid && half&1 == 1) {
			half++
		}
		return sign | half
	}
	half := sign | uint16(exp)<<10 | uint16(mant>>13)
	rem := mant & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && half&1 == 1) {
		half++
	}
	return half
}

func halfToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)
	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x3ff
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}

// hostBindGroup marks a provider as bound. Resources are resolved from the provider at record time.
type hostBindGroup struct {
	label string
}

// hostBindings implements pipeline.HostBindings over the providers of one dispatch or draw.
type hostBindings []bind_group_provider.BindGroupProvider

func (h hostBindings) provider(group int) bind_group_provider.BindGroupProvider {
	if group < 0 || group >= len(h) {
		return nil
	}
	return h[group]
}

func (h hostBindings) Bytes(group, binding int) []byte {
	p := h.provider(group)
	if p == nil {
		return nil
	}
	if buf, ok := p.Buffer(binding).(*hostBuffer); ok {
		return buf.data
	}
	return nil
}

func (h hostBindings) Words(group, binding int) []uint32 {
	return common.BytesToU32(h.Bytes(group, binding))
}

func (h hostBindings) Image(group, binding int) pipeline.HostImage {
	p := h.provider(group)
	if p == nil {
		return nil
	}
	if tex, ok := p.Texture(binding).(*hostTexture); ok {
		return tex
	}
	return nil
}

type pendingMap struct {
	data     []byte
	err      error
	callback func([]byte, error)
}

// headlessBackend keeps every resource in system memory and executes the host kernels attached
// to pipelines. Queue writes apply immediately and recorded commands run at EndComputeFrame,
// matching the ordering of a single WebGPU queue.
type headlessBackend struct {
	mu *sync.Mutex

	pool    worker.DynamicWorkerPool
	workers int
	taskID  int

	recording bool
	commands  []func() error

	pendingMaps []pendingMap

	width, height int
	presentMode   PresentMode
	lastPresented resource.Texture
}

// HeadlessBackendOption configures the headless backend.
type HeadlessBackendOption func(*headlessBackend)

// WithHostWorkers sets the number of workers used to run parallel host kernels.
//
// Parameters:
//   - n: the worker count; values below 1 fall back to the default
//
// Returns:
//   - HeadlessBackendOption: a function that applies the worker count
func WithHostWorkers(n int) HeadlessBackendOption {
	return func(b *headlessBackend) {
		if n > 0 {
			b.workers = n
		}
	}
}

var _ RendererBackend = &headlessBackend{}

// NewHeadlessBackend creates a backend that needs no GPU or window. It is used by tests and by
// the -headless command line mode.
//
// Parameters:
//   - options: variadic list of HeadlessBackendOption functions
//
// Returns:
//   - RendererBackend: the headless backend
func NewHeadlessBackend(options ...HeadlessBackendOption) RendererBackend {
	b := &headlessBackend{
		mu:      &sync.Mutex{},
		workers: max(runtime.NumCPU()-1, 1),
	}
	for _, opt := range options {
		opt(b)
	}
	b.pool = worker.NewDynamicWorkerPool(b.workers, 256, 1*time.Second)
	return b
}

func (b *headlessBackend) Type() RendererBackendType {
	return BackendTypeHeadless
}

func (b *headlessBackend) RegisterComputePipeline(p pipeline.Pipeline) error {
	if p.Shader(shader.ShaderTypeCompute) == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}
	p.SetPipeline(p.PipelineKey())
	return nil
}

func (b *headlessBackend) RegisterRenderPipeline(p pipeline.Pipeline) error {
	if p.Shader(shader.ShaderTypeVertex) == nil || p.Shader(shader.ShaderTypeFragment) == nil {
		return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
	}
	p.SetPipeline(p.PipelineKey())
	return nil
}

func (b *headlessBackend) CreateBuffer(label string, size uint64, usage resource.BufferUsage) (resource.Buffer, error) {
	return &hostBuffer{label: label, usage: usage, data: make([]byte, size)}, nil
}

func (b *headlessBackend) CreateTexture(label string, width, height uint32, format resource.TextureFormat, usage resource.TextureUsage) (resource.Texture, error) {
	if format.BytesPerTexel() == 0 {
		return nil, fmt.Errorf("headless: unsupported texture format %s", format)
	}
	return &hostTexture{
		label:  label,
		width:  width,
		height: height,
		format: format,
		usage:  usage,
		texels: make([]float32, int(width)*int(height)*4),
	}, nil
}

func (b *headlessBackend) CreateBindGroup(provider bind_group_provider.BindGroupProvider, layout shader.BindGroupLayout) error {
	for _, e := range layout.Entries {
		switch {
		case e.Kind.IsBuffer():
			if _, ok := provider.Buffer(e.Binding).(*hostBuffer); !ok {
				return fmt.Errorf("headless: %s binding %d is not a host buffer", provider.Label(), e.Binding)
			}
		case e.Kind == shader.BindingKindTexture || e.Kind == shader.BindingKindStorageTexture:
			if _, ok := provider.Texture(e.Binding).(*hostTexture); !ok {
				return fmt.Errorf("headless: %s binding %d is not a host texture", provider.Label(), e.Binding)
			}
		}
	}
	provider.SetBindGroup(&hostBindGroup{label: provider.Label()})
	return nil
}

func (b *headlessBackend) WriteBuffer(buf resource.Buffer, offset uint64, data []byte) error {
	hb, ok := buf.(*hostBuffer)
	if !ok {
		return fmt.Errorf("headless: %s is not a host buffer", buf.Label())
	}
	if offset+uint64(len(data)) > uint64(len(hb.data)) {
		return fmt.Errorf("headless: write of %d bytes at %d overflows %s (%d bytes)", len(data), offset, hb.label, len(hb.data))
	}
	copy(hb.data[offset:], data)
	return nil
}

func (b *headlessBackend) WriteTexture(tex resource.Texture, data []byte) error {
	ht, ok := tex.(*hostTexture)
	if !ok {
		return fmt.Errorf("headless: %s is not a host texture", tex.Label())
	}
	bpt := ht.format.BytesPerTexel()
	if len(data) != int(ht.width)*int(ht.height)*bpt {
		return fmt.Errorf("headless: texture upload for %s is %d bytes, want %d", ht.label, len(data), int(ht.width)*int(ht.height)*bpt)
	}
	decodeTexels(ht.format, data, ht.texels)
	return nil
}

func (b *headlessBackend) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recording = true
	b.commands = b.commands[:0]
	return nil
}

func (b *headlessBackend) record(cmd func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.recording {
		return ErrNoComputeFrame
	}
	b.commands = append(b.commands, cmd)
	return nil
}

func (b *headlessBackend) DispatchCompute(p pipeline.Pipeline, groups []bind_group_provider.BindGroupProvider, workgroups [3]uint32) error {
	kernel := p.HostKernel()
	if kernel == nil {
		return fmt.Errorf("%w: %q", ErrNoHostKernel, p.PipelineKey())
	}
	d := pipeline.Dispatch{
		Workgroups:    workgroups,
		WorkgroupSize: p.Shader(shader.ShaderTypeCompute).WorkgroupSize(),
		Bindings:      hostBindings(append([]bind_group_provider.BindGroupProvider(nil), groups...)),
		Parallel:      b.parallel,
	}
	return b.record(func() error {
		if err := kernel(d); err != nil {
			return fmt.Errorf("headless: %s: %w", p.PipelineKey(), err)
		}
		return nil
	})
}

func (b *headlessBackend) Draw(p pipeline.Pipeline, target resource.Texture, groups []bind_group_provider.BindGroupProvider, vertices resource.Buffer, vertexCount uint32) error {
	raster := p.HostRaster()
	if raster == nil {
		return fmt.Errorf("%w: %q", ErrNoHostKernel, p.PipelineKey())
	}
	ht, ok := target.(*hostTexture)
	if !ok {
		return fmt.Errorf("headless: draw target %s is not a host texture", target.Label())
	}
	hb, ok := vertices.(*hostBuffer)
	if !ok {
		return fmt.Errorf("headless: vertex buffer %s is not a host buffer", vertices.Label())
	}
	d := pipeline.Draw{
		Target:      ht,
		Vertices:    hb.data,
		VertexCount: vertexCount,
		CullMode:    p.CullMode(),
		Bindings:    hostBindings(append([]bind_group_provider.BindGroupProvider(nil), groups...)),
	}
	return b.record(func() error {
		if err := raster(d); err != nil {
			return fmt.Errorf("headless: %s: %w", p.PipelineKey(), err)
		}
		return nil
	})
}

func (b *headlessBackend) CopyBufferToBuffer(src, dst resource.Buffer, size uint64) error {
	s, ok1 := src.(*hostBuffer)
	d, ok2 := dst.(*hostBuffer)
	if !ok1 || !ok2 {
		return errors.New("headless: copy between non-host buffers")
	}
	if size > uint64(len(s.data)) || size > uint64(len(d.data)) {
		return fmt.Errorf("headless: copy of %d bytes from %s to %s out of range", size, s.label, d.label)
	}
	return b.record(func() error {
		copy(d.data[:size], s.data[:size])
		return nil
	})
}

func (b *headlessBackend) EndComputeFrame() error {
	b.mu.Lock()
	cmds := b.commands
	b.commands = nil
	b.recording = false
	b.mu.Unlock()

	for _, cmd := range cmds {
		if err := cmd(); err != nil {
			return err
		}
	}
	return nil
}

// parallel splits [0, n) into one contiguous chunk per worker and blocks until every chunk ran.
func (b *headlessBackend) parallel(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	chunks := min(b.workers, n)
	if chunks <= 1 {
		for i := range n {
			fn(i)
		}
		return
	}
	size := (n + chunks - 1) / chunks
	var wg sync.WaitGroup
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		wg.Add(1)
		b.mu.Lock()
		id := b.taskID
		b.taskID++
		b.mu.Unlock()
		b.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				for i := start; i < end; i++ {
					fn(i)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (b *headlessBackend) MapRead(buf resource.Buffer, size uint64, callback func(data []byte, err error)) {
	pm := pendingMap{callback: callback}
	hb, ok := buf.(*hostBuffer)
	switch {
	case !ok:
		pm.err = errors.New("headless: map of non-host buffer")
	case !hb.usage.Has(resource.BufferUsageMapRead):
		pm.err = fmt.Errorf("headless: %s was not created with MapRead usage", hb.label)
	case size > uint64(len(hb.data)):
		pm.err = fmt.Errorf("headless: map of %d bytes exceeds %s (%d bytes)", size, hb.label, len(hb.data))
	default:
		pm.data = append([]byte(nil), hb.data[:size]...)
	}
	b.mu.Lock()
	b.pendingMaps = append(b.pendingMaps, pm)
	b.mu.Unlock()
}

func (b *headlessBackend) Poll(wait bool) {
	b.mu.Lock()
	pending := b.pendingMaps
	b.pendingMaps = nil
	b.mu.Unlock()
	for _, pm := range pending {
		pm.callback(pm.data, pm.err)
	}
}

func (b *headlessBackend) ReadBuffer(buf resource.Buffer) ([]byte, error) {
	hb, ok := buf.(*hostBuffer)
	if !ok {
		return nil, errors.New("headless: read of non-host buffer")
	}
	return append([]byte(nil), hb.data...), nil
}

func (b *headlessBackend) ReadTexture(tex resource.Texture) ([]byte, error) {
	ht, ok := tex.(*hostTexture)
	if !ok {
		return nil, errors.New("headless: read of non-host texture")
	}
	return encodeTexels(ht.format, ht.texels), nil
}

func (b *headlessBackend) Present(source resource.Texture) error {
	if _, ok := source.(*hostTexture); !ok {
		return errors.New("headless: present of non-host texture")
	}
	b.mu.Lock()
	b.lastPresented = source
	b.mu.Unlock()
	return nil
}

func (b *headlessBackend) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
}

func (b *headlessBackend) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentMode = mode
}

func (b *headlessBackend) Release() {
	b.pool.Stop()
}

// encodeTexels packs float texels into the tightly packed byte layout of format.
func encodeTexels(format resource.TextureFormat, texels []float32) []byte {
	count := len(texels) / 4
	out := make([]byte, count*format.BytesPerTexel())
	for i := range count {
		t := texels[i*4 : i*4+4]
		switch format {
		case resource.TextureFormatRGBA8Unorm:
			for c := range 4 {
				out[i*4+c] = unorm8(t[c])
			}
		case resource.TextureFormatBGRA8UnormSrgb:
			out[i*4+0] = unorm8(t[2])
			out[i*4+1] = unorm8(t[1])
			out[i*4+2] = unorm8(t[0])
			out[i*4+3] = unorm8(t[3])
		case resource.TextureFormatRGBA16Float:
			for c := range 4 {
				h := float32ToHalf(t[c])
				out[i*8+c*2] = byte(h)
				out[i*8+c*2+1] = byte(h >> 8)
			}
		case resource.TextureFormatRGBA32Float:
			for c := range 4 {
				putU32(out[i*16+c*4:], math.Float32bits(t[c]))
			}
		case resource.TextureFormatR32Uint:
			putU32(out[i*4:], uint32(max(t[0], 0)))
		}
	}
	return out
}

// decodeTexels unpacks tightly packed bytes of format into float texels.
func decodeTexels(format resource.TextureFormat, data []byte, texels []float32) {
	count := len(texels) / 4
	for i := range count {
		t := texels[i*4 : i*4+4]
		switch format {
		case resource.TextureFormatRGBA8Unorm:
			for c := range 4 {
				t[c] = float32(data[i*4+c]) / 255
			}
		case resource.TextureFormatBGRA8UnormSrgb:
			t[0] = float32(data[i*4+2]) / 255
			t[1] = float32(data[i*4+1]) / 255
			t[2] = float32(data[i*4+0]) / 255
			t[3] = float32(data[i*4+3]) / 255
		case resource.TextureFormatRGBA16Float:
			for c := range 4 {
				t[c] = halfToFloat32(uint16(data[i*8+c*2]) | uint16(data[i*8+c*2+1])<<8)
			}
		case resource.TextureFormatRGBA32Float:
			for c := range 4 {
				t[c] = math.Float32frombits(getU32(data[i*16+c*4:]))
			}
		case resource.TextureFormatR32Uint:
			t[0] = float32(getU32(data[i*4:]))
			t[1], t[2], t[3] = 0, 0, 0
		}
	}
}

func putU32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
