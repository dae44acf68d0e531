package imagefetch

// Progress is published after every chunk read from the response body and
// once more, with Done set, after the image was decoded.
type Progress struct {
	// Read is the number of bytes delivered by this chunk.
	Read int
	// Total is the number of bytes read so far.
	Total int64
	// ContentLength is the advertised body size, -1 when unknown.
	ContentLength int64
	Done          bool
}

// Percent converts the progress to 0..100. Partial progress never reports
// 100 and stays at 0 when the content length is unknown.
func (p Progress) Percent() int {
	if p.Done {
		return 100
	}
	if p.ContentLength <= 0 {
		return 0
	}
	pct := int(100 * p.Total / p.ContentLength)
	if pct < 0 {
		return 0
	}
	if pct > 99 {
		return 99
	}
	return pct
}

// ProgressFunc receives progress in the order bytes were read.
type ProgressFunc func(Progress)
