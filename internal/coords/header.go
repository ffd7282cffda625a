package coords

// Image keywords read by FromHeader.
const (
	KeyScale   = "LTM1_1"
	KeyOffsetX = "LTV1"
	KeyOffsetY = "LTV2"
	KeyRA0     = "REFXCRVL"
	KeyDec0    = "REFYCRVL"
	KeyX0      = "REFXCRPX"
	KeyY0      = "REFYCRPX"
	KeyDelta   = "REFYCDLT"
)

// FromHeader builds the transform of an image from its numeric keywords.
// Missing pixel keywords default to the identity; the sky part is only set
// when all reference keywords are present.
func FromHeader(h map[string]float64) *Transform {
	t := &Transform{Pixel: Linear{Scale: 1}}
	if v, ok := h[KeyScale]; ok {
		t.Pixel.Scale = v
	}
	t.Pixel.OffsetX = h[KeyOffsetX]
	t.Pixel.OffsetY = h[KeyOffsetY]

	ra, ok1 := h[KeyRA0]
	dec, ok2 := h[KeyDec0]
	x0, ok3 := h[KeyX0]
	y0, ok4 := h[KeyY0]
	dd, ok5 := h[KeyDelta]
	if ok1 && ok2 && ok3 && ok4 && ok5 {
		if dd < 0 {
			dd = -dd
		}
		t.Sky = &Tangent{RA0: ra, Dec0: dec, X0: x0, Y0: y0, DegPerUnit: dd}
	}
	return t
}
