// Package resource holds the backend-neutral GPU resource handles shared by the renderer,
// its backends and the render passes. Backends return their own implementations of Buffer and
// Texture; callers only ever see these interfaces.
package resource

// BufferUsage is a bit set describing how a buffer may be used.
type BufferUsage uint32

const (
	// BufferUsageMapRead allows the buffer to be mapped for CPU reads.
	BufferUsageMapRead BufferUsage = 1 << iota
	// BufferUsageCopySrc allows the buffer to be the source of a copy.
	BufferUsageCopySrc
	// BufferUsageCopyDst allows the buffer to be the destination of a copy or queue write.
	BufferUsageCopyDst
	// BufferUsageUniform allows the buffer to be bound as a uniform buffer.
	BufferUsageUniform
	// BufferUsageStorage allows the buffer to be bound as a storage buffer.
	BufferUsageStorage
	// BufferUsageVertex allows the buffer to be bound as a vertex buffer.
	BufferUsageVertex
	// BufferUsageIndex allows the buffer to be bound as an index buffer.
	BufferUsageIndex
)

// Has reports whether every bit of flag is set on u.
func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

// TextureFormat identifies a texel format.
type TextureFormat int

const (
	// TextureFormatUndefined is the zero value.
	TextureFormatUndefined TextureFormat = iota
	// TextureFormatRGBA8Unorm is 4x8-bit normalized color.
	TextureFormatRGBA8Unorm
	// TextureFormatBGRA8UnormSrgb is the common surface format.
	TextureFormatBGRA8UnormSrgb
	// TextureFormatRGBA16Float is 4x16-bit float, used for normals and HDR color.
	TextureFormatRGBA16Float
	// TextureFormatRGBA32Float is 4x32-bit float, used for world positions.
	TextureFormatRGBA32Float
	// TextureFormatR32Uint is a single 32-bit unsigned channel.
	TextureFormatR32Uint
)

// BytesPerTexel returns the size of one texel in bytes, or 0 for an undefined format.
func (f TextureFormat) BytesPerTexel() int {
	switch f {
	case TextureFormatRGBA8Unorm, TextureFormatBGRA8UnormSrgb, TextureFormatR32Uint:
		return 4
	case TextureFormatRGBA16Float:
		return 8
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	case TextureFormatBGRA8UnormSrgb:
		return "bgra8unorm-srgb"
	case TextureFormatRGBA16Float:
		return "rgba16float"
	case TextureFormatRGBA32Float:
		return "rgba32float"
	case TextureFormatR32Uint:
		return "r32uint"
	default:
		return "undefined"
	}
}

// TextureUsage is a bit set describing how a texture may be used.
type TextureUsage uint32

const (
	// TextureUsageCopySrc allows the texture to be the source of a copy or readback.
	TextureUsageCopySrc TextureUsage = 1 << iota
	// TextureUsageCopyDst allows the texture to be written by the queue.
	TextureUsageCopyDst
	// TextureUsageTextureBinding allows sampling the texture in a shader.
	TextureUsageTextureBinding
	// TextureUsageStorageBinding allows the texture to be bound as a storage texture.
	TextureUsageStorageBinding
	// TextureUsageRenderAttachment allows the texture to be a render target.
	TextureUsageRenderAttachment
)

// Has reports whether every bit of flag is set on u.
func (u TextureUsage) Has(flag TextureUsage) bool {
	return u&flag == flag
}

// Buffer is a GPU buffer handle.
type Buffer interface {
	// Label returns the debug label given at creation.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() BufferUsage

	// Release frees the underlying GPU memory. Releasing twice is a no-op.
	Release()
}

// Texture is a 2D GPU texture handle.
type Texture interface {
	// Label returns the debug label given at creation.
	Label() string

	// Width returns the texture width in texels.
	Width() uint32

	// Height returns the texture height in texels.
	Height() uint32

	// Format returns the texel format.
	Format() TextureFormat

	// Usage returns the usage flags the texture was created with.
	Usage() TextureUsage

	// Release frees the underlying GPU memory. Releasing twice is a no-op.
	Release()
}
