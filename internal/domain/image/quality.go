package image

import (
	"bytes"
	"image"
	"math"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"denticheck-server/internal/platform/config"
	"denticheck-server/internal/platform/logging"
)

const (
	overexposedLuma  = 250
	underexposedLuma = 20
	edgeMagnitude    = 64
	glareSaturation  = 40.0 / 255.0
	glareValue       = 245.0 / 255.0
)

// QualityGate rejects captures that are too small, blurry, badly exposed or
// dominated by specular glare before they reach the detector.
type QualityGate struct {
	cfg    config.QualityConfig
	logger *logging.Logger
}

func NewQualityGate(cfg config.QualityConfig, logger *logging.Logger) *QualityGate {
	if cfg.AnalysisSide <= 0 {
		cfg.AnalysisSide = 512
	}
	return &QualityGate{cfg: cfg, logger: logger}
}

type qualityMetrics struct {
	minSide    int
	edgeRatio  float64
	overRatio  float64
	underRatio float64
	glareRatio float64
}

// Check never returns an error; undecodable input is reported as a failed
// verdict with ReasonDecodeFailed.
func (g *QualityGate) Check(data []byte) QualityResult {
	if len(data) == 0 {
		return QualityResult{Pass: false, Score: 0, Reasons: []string{ReasonEmptyFile}}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		g.logger.DebugTag("QUALITY", "decode failed: %v", err)
		return QualityResult{Pass: false, Score: 0, Reasons: []string{ReasonDecodeFailed}}
	}

	bounds := img.Bounds()
	result := QualityResult{Width: bounds.Dx(), Height: bounds.Dy(), Reasons: []string{}}
	if !g.cfg.Enabled {
		result.Pass = true
		result.Score = 1
		return result
	}

	m := g.measure(img)

	if g.cfg.MinSide > 0 && m.minSide < g.cfg.MinSide {
		result.Reasons = append(result.Reasons, ReasonTooSmall)
	}
	if m.edgeRatio < g.cfg.MinEdgeRatio {
		result.Reasons = append(result.Reasons, ReasonBlurry)
	}
	if m.overRatio > g.cfg.MaxOverexposedRatio {
		result.Reasons = append(result.Reasons, ReasonOverexposed)
	}
	if m.underRatio > g.cfg.MaxUnderexposedRatio {
		result.Reasons = append(result.Reasons, ReasonUnderexposed)
	}
	if m.glareRatio > g.cfg.MaxGlareRatio {
		result.Reasons = append(result.Reasons, ReasonGlare)
	}

	result.Pass = len(result.Reasons) == 0
	result.Score = g.score(m)

	g.logger.DebugTag("QUALITY", "checked %dx%d: edge=%.4f over=%.3f under=%.3f glare=%.3f reasons=%v",
		result.Width, result.Height, m.edgeRatio, m.overRatio, m.underRatio, m.glareRatio, result.Reasons)
	return result
}

func (g *QualityGate) measure(img image.Image) qualityMetrics {
	bounds := img.Bounds()
	m := qualityMetrics{minSide: min(bounds.Dx(), bounds.Dy())}

	thumb := imaging.Fit(img, g.cfg.AnalysisSide, g.cfg.AnalysisSide, imaging.Linear)
	gray := imaging.Grayscale(thumb)
	edges := effect.EdgeDetection(gray, 1.0)

	tb := thumb.Bounds()
	total := tb.Dx() * tb.Dy()
	if total == 0 {
		return m
	}

	var over, under, glare, edge int
	for y := 0; y < tb.Dy(); y++ {
		for x := 0; x < tb.Dx(); x++ {
			luma := gray.Pix[y*gray.Stride+x*4]
			switch {
			case luma > overexposedLuma:
				over++
			case luma < underexposedLuma:
				under++
			}
			if edges.Pix[y*edges.Stride+x*4] > edgeMagnitude {
				edge++
			}
			c, ok := colorful.MakeColor(thumb.NRGBAAt(x, y))
			if !ok {
				continue
			}
			_, s, v := c.Hsv()
			if s < glareSaturation && v > glareValue {
				glare++
			}
		}
	}

	n := float64(total)
	m.overRatio = float64(over) / n
	m.underRatio = float64(under) / n
	m.glareRatio = float64(glare) / n
	m.edgeRatio = float64(edge) / n
	return m
}

// score blends per-check headroom into [0, 1]; 1 means every check passed
// with margin.
func (g *QualityGate) score(m qualityMetrics) float64 {
	parts := []float64{
		ratioScore(float64(m.minSide), float64(g.cfg.MinSide)),
		ratioScore(m.edgeRatio, g.cfg.MinEdgeRatio),
		1 - clamp01(math.Max(safeDiv(m.overRatio, g.cfg.MaxOverexposedRatio), safeDiv(m.underRatio, g.cfg.MaxUnderexposedRatio))-0.5),
		1 - clamp01(safeDiv(m.glareRatio, g.cfg.MaxGlareRatio)-0.5),
	}
	var sum float64
	for _, p := range parts {
		sum += p
	}
	return math.Round(sum/float64(len(parts))*100) / 100
}

func ratioScore(value, minimum float64) float64 {
	if minimum <= 0 {
		return 1
	}
	return clamp01(value / minimum)
}

func safeDiv(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return a / b
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
