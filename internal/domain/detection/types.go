package detection

// BoundingBox is center-based and normalized to the image size; every field
// lies in [0, 1].
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area is W*H as a fraction of the image.
func (b BoundingBox) Area() float64 {
	return b.W * b.H
}

// Prediction is what a backend emits before thresholding and class lookup.
type Prediction struct {
	ClassID    int
	Confidence float64
	Box        BoundingBox
}

// RawDetection is a thresholded prediction with its model class name.
type RawDetection struct {
	ClassID   int
	ClassName string
	Score     float64
	Box       BoundingBox
}

// Detection is a normalized finding.
type Detection struct {
	Label Label       `json:"label"`
	Score float64     `json:"confidence"`
	BBox  BoundingBox `json:"bbox"`
}

// LabelSummary aggregates the detections of one label.
type LabelSummary struct {
	Count     int      `json:"count"`
	MaxScore  float64  `json:"max_score"`
	AreaRatio *float64 `json:"area_ratio,omitempty"`
}

// Failure describes why an outcome is degraded.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Outcome is the result of one detection request. A degraded outcome has no
// detections and carries the Failure that caused it.
type Outcome struct {
	RequestID         string                 `json:"request_id"`
	Detections        []Detection            `json:"detections"`
	Summary           map[Label]LabelSummary `json:"summary"`
	ClassTableVersion string                 `json:"class_table_version,omitempty"`
	Degraded          bool                   `json:"degraded"`
	Failure           *Failure               `json:"failure,omitempty"`
}
