package detector

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Area returns the box area in pixels.
func (b Box) Area() int {
	return (b.XMax - b.XMin) * (b.YMax - b.YMin)
}

// Intersection returns the overlapping area of two boxes, 0 when disjoint.
func Intersection(a, b Box) int {
	xMin := max(a.XMin, b.XMin)
	yMin := max(a.YMin, b.YMin)
	xMax := min(a.XMax, b.XMax)
	yMax := min(a.YMax, b.YMax)

	if xMin >= xMax || yMin >= yMax {
		return 0
	}
	return (xMax - xMin) * (yMax - yMin)
}

// IoU returns the intersection-over-union ratio of two boxes.
func IoU(a, b Box) float64 {
	inter := Intersection(a, b)
	union := a.Area() + b.Area() - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Merge returns the union of both boxes' extents.
func Merge(a, b Box) Box {
	return Box{
		XMin: min(a.XMin, b.XMin),
		YMin: min(a.YMin, b.YMin),
		XMax: max(a.XMax, b.XMax),
		YMax: max(a.YMax, b.YMax),
	}
}

// FilterLarge drops boxes whose area exceeds maxArea. A box that big is a
// global lighting change, not an object.
func FilterLarge(boxes []Box, maxArea int) []Box {
	kept := boxes[:0]
	for _, b := range boxes {
		if b.Area() <= maxArea {
			kept = append(kept, b)
		}
	}
	return kept
}

// FilterSmall drops boxes whose area is below minArea.
func FilterSmall(boxes []Box, minArea int) []Box {
	kept := boxes[:0]
	for _, b := range boxes {
		if b.Area() >= minArea {
			kept = append(kept, b)
		}
	}
	return kept
}

// FilterEdges drops boxes touching any frame edge; those are partially
// occluded or clipped, not clean detections.
func FilterEdges(boxes []Box, width, height int) []Box {
	kept := boxes[:0]
	for _, b := range boxes {
		if b.XMin == 0 || b.YMin == 0 || b.XMax == width-1 || b.YMax == height-1 {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// MergeOverlapping merges every pair of boxes whose IoU exceeds iouThreshold
// into the union of their extents, repeating until no pair qualifies.
func MergeOverlapping(boxes []Box, iouThreshold float64) []Box {
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(boxes); i++ {
			for j := i + 1; j < len(boxes); j++ {
				if IoU(boxes[i], boxes[j]) > iouThreshold {
					boxes[i] = Merge(boxes[i], boxes[j])
					boxes = append(boxes[:j], boxes[j+1:]...)
					j--
					changed = true
				}
			}
		}
	}
	return boxes
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
