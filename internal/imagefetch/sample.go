package imagefetch

// Target is the bounding box a downloaded image is reduced towards.
type Target struct {
	Width  int
	Height int
}

// DefaultTarget is the hint image box used when the caller does not pick one.
var DefaultTarget = Target{Width: 480, Height: 360}

// SampleFactor returns the power-of-two divisor applied to an image of
// rawWidth x rawHeight so that it stays at least roughly half the target on
// both axes. The factor doubles while halving the raw size by it still covers
// the target on both axes.
func SampleFactor(rawWidth, rawHeight int, target Target) int {
	factor := 1
	if target.Width <= 0 || target.Height <= 0 {
		return factor
	}
	if rawWidth <= target.Width && rawHeight <= target.Height {
		return factor
	}
	halfWidth := rawWidth / 2
	halfHeight := rawHeight / 2
	for halfWidth/factor >= target.Width && halfHeight/factor >= target.Height {
		factor *= 2
	}
	return factor
}
