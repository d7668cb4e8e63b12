package detection

// AggregateOptions controls optional summary fields.
type AggregateOptions struct {
	IncludeAreaRatio bool
}

// Aggregate summarizes detections per label. Only labels with at least one
// detection appear; an empty input yields an empty, non-nil map. AreaRatio
// is the sum of box areas and may exceed 1 when boxes overlap.
func Aggregate(dets []Detection, opts AggregateOptions) map[Label]LabelSummary {
	summary := make(map[Label]LabelSummary)
	for _, d := range dets {
		s := summary[d.Label]
		s.Count++
		if s.Count == 1 || d.Score > s.MaxScore {
			s.MaxScore = d.Score
		}
		if opts.IncludeAreaRatio {
			area := d.BBox.Area()
			if s.AreaRatio != nil {
				area += *s.AreaRatio
			}
			s.AreaRatio = &area
		}
		summary[d.Label] = s
	}
	return summary
}
