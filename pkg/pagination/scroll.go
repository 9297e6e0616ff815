package pagination

// ScrollPosition describes how far a list has been scrolled.
// Units are up to the caller (pixels, rows) as long as they are consistent.
type ScrollPosition struct {
	Offset         float64
	ViewportHeight float64
	ContentHeight  float64
}

// AtEnd reports whether the bottom of the viewport is within threshold of the content end.
func (p ScrollPosition) AtEnd(threshold float64) bool {
	return p.Offset+p.ViewportHeight+threshold >= p.ContentHeight
}

// ItemPosition builds a position for row-based lists where cursor is the selected row.
// The end is reached when the cursor sits on the last row.
func ItemPosition(cursor, count int) ScrollPosition {
	return ScrollPosition{
		Offset:         float64(cursor),
		ViewportHeight: 1,
		ContentHeight:  float64(count),
	}
}
