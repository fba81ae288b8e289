package image

import "strings"

// Component identifiers.
const (
	ComponentR byte = 'r'
	ComponentG byte = 'g'
	ComponentB byte = 'b'
	ComponentA byte = 'a'
	ComponentY byte = 'y'
	ComponentU byte = 'u'
	ComponentV byte = 'v'
)

// Component is one channel of a pixel format.
type Component struct {
	ID   byte
	Bits int
}

// Bytes returns the storage size of one sample of the component.
func (c Component) Bytes() int {
	return (c.Bits + 7) / 8
}

// Layout describes how components are arranged in memory.
type Layout int

const (
	// Packed interleaves every component of a pixel.
	Packed Layout = iota
	// Planar stores each component in its own plane.
	Planar
	// SemiPlanar stores the first component alone and interleaves the rest.
	SemiPlanar
)

// String returns the name of the layout.
func (l Layout) String() string {
	switch l {
	case Packed:
		return "packed"
	case Planar:
		return "planar"
	case SemiPlanar:
		return "semi-planar"
	default:
		return "unknown"
	}
}

// Format is a pixel format: its components, their subsampling and their
// layout. WidthShift and HeightShift give, per component, the power of
// two its plane is subsampled by.
type Format struct {
	Name        string
	Components  []Component
	WidthShift  []int
	HeightShift []int
	Layout      Layout
}

func newFormat(name string, layout Layout, ids string, bits int, widthShift, heightShift []int) Format {
	f := Format{
		Name:        name,
		Layout:      layout,
		Components:  make([]Component, len(ids)),
		WidthShift:  make([]int, len(ids)),
		HeightShift: make([]int, len(ids)),
	}
	for i := range ids {
		f.Components[i] = Component{ID: ids[i], Bits: bits}
	}
	copy(f.WidthShift, widthShift)
	copy(f.HeightShift, heightShift)
	return f
}

// RGB is packed 8-bit red, green, blue.
func RGB() Format { return newFormat("rgb24", Packed, "rgb", 8, nil, nil) }

// BGR is packed 8-bit blue, green, red.
func BGR() Format { return newFormat("bgr24", Packed, "bgr", 8, nil, nil) }

// RGBA is packed 8-bit red, green, blue, alpha.
func RGBA() Format { return newFormat("rgba", Packed, "rgba", 8, nil, nil) }

// ARGB is packed 8-bit alpha, red, green, blue.
func ARGB() Format { return newFormat("argb", Packed, "argb", 8, nil, nil) }

// YUV is packed 8-bit 4:4:4 luma and chroma.
func YUV() Format { return newFormat("yuv444", Packed, "yuv", 8, nil, nil) }

// YUV420P is planar 8-bit 4:2:0: a full luma plane and two quarter-size
// chroma planes.
func YUV420P() Format {
	return newFormat("yuv420p", Planar, "yuv", 8, []int{0, 1, 1}, []int{0, 1, 1})
}

// NV12 is semi-planar 8-bit 4:2:0 with interleaved chroma.
func NV12() Format {
	return newFormat("nv12", SemiPlanar, "yuv", 8, []int{0, 1, 1}, []int{0, 1, 1})
}

// ComponentIndex returns the index of the component with the given id,
// or -1.
func (f Format) ComponentIndex(id byte) int {
	for i, c := range f.Components {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// HasAlpha reports whether the format carries an alpha component.
func (f Format) HasAlpha() bool {
	return f.ComponentIndex(ComponentA) >= 0
}

// IsInterleaved reports whether all components share one plane.
func (f Format) IsInterleaved() bool {
	return f.Layout == Packed
}

// IsRGB reports whether the format has red, green and blue components.
func (f Format) IsRGB() bool {
	return f.ComponentIndex(ComponentR) >= 0 &&
		f.ComponentIndex(ComponentG) >= 0 &&
		f.ComponentIndex(ComponentB) >= 0
}

// Planes returns the number of memory planes.
func (f Format) Planes() int {
	switch f.Layout {
	case Planar:
		return len(f.Components)
	case SemiPlanar:
		if len(f.Components) > 1 {
			return 2
		}
		return 1
	default:
		return 1
	}
}

// plane returns the plane holding component c.
func (f Format) plane(c int) int {
	switch f.Layout {
	case Planar:
		return c
	case SemiPlanar:
		if c == 0 {
			return 0
		}
		return 1
	default:
		return 0
	}
}

// planeComponents returns the first and one-past-last component of plane p.
func (f Format) planeComponents(p int) (int, int) {
	switch f.Layout {
	case Planar:
		return p, p + 1
	case SemiPlanar:
		if p == 0 {
			return 0, 1
		}
		return 1, len(f.Components)
	default:
		return 0, len(f.Components)
	}
}

// sampleBytes returns the bytes of one interleaved sample in plane p.
func (f Format) sampleBytes(p int) int {
	first, last := f.planeComponents(p)
	n := 0
	for c := first; c < last; c++ {
		n += f.Components[c].Bytes()
	}
	return n
}

// componentPosition returns the byte position of component c within its
// interleaved sample.
func (f Format) componentPosition(c int) int {
	first, _ := f.planeComponents(f.plane(c))
	pos := 0
	for i := first; i < c; i++ {
		pos += f.Components[i].Bytes()
	}
	return pos
}

func (f Format) shifts(p int) (int, int) {
	first, _ := f.planeComponents(p)
	var ws, hs int
	if first < len(f.WidthShift) {
		ws = f.WidthShift[first]
	}
	if first < len(f.HeightShift) {
		hs = f.HeightShift[first]
	}
	return ws, hs
}

// String returns the format name, or its component ids when unnamed.
func (f Format) String() string {
	if f.Name != "" {
		return f.Name
	}
	var b strings.Builder
	for _, c := range f.Components {
		b.WriteByte(c.ID)
	}
	return b.String()
}

// subsampled divides n by 2^shift, rounding up so odd sizes keep their
// last row or column.
func subsampled(n, shift int) int {
	return (n + (1 << shift) - 1) >> shift
}

// CalculateSize returns the number of bytes an image of the given format
// and size occupies.
func CalculateSize(f Format, width, height int) int {
	size := 0
	for p := 0; p < f.Planes(); p++ {
		ws, hs := f.shifts(p)
		size += subsampled(width, ws) * subsampled(height, hs) * f.sampleBytes(p)
	}
	return size
}
