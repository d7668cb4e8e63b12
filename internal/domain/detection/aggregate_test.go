package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_Empty(t *testing.T) {
	summary := Aggregate(nil, AggregateOptions{IncludeAreaRatio: true})
	require.NotNil(t, summary)
	assert.Empty(t, summary)
}

func TestAggregate_CountAndMax(t *testing.T) {
	dets := []Detection{
		{Label: LabelCaries, Score: 0.9, BBox: BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.1}},
		{Label: LabelCaries, Score: 0.4, BBox: BoundingBox{X: 0.2, Y: 0.2, W: 0.1, H: 0.1}},
	}
	summary := Aggregate(dets, AggregateOptions{})

	require.Len(t, summary, 1)
	s := summary[LabelCaries]
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 0.9, s.MaxScore)
	assert.Nil(t, s.AreaRatio)
}

func TestAggregate_AreaRatio(t *testing.T) {
	dets := []Detection{
		{Label: LabelTartar, Score: 0.3, BBox: BoundingBox{W: 0.5, H: 0.2}},
		{Label: LabelTartar, Score: 0.6, BBox: BoundingBox{W: 0.1, H: 0.1}},
		{Label: LabelOralCancer, Score: 0.7, BBox: BoundingBox{W: 0.2, H: 0.2}},
	}
	summary := Aggregate(dets, AggregateOptions{IncludeAreaRatio: true})

	require.NotNil(t, summary[LabelTartar].AreaRatio)
	assert.InDelta(t, 0.11, *summary[LabelTartar].AreaRatio, 1e-9)
	assert.InDelta(t, 0.04, *summary[LabelOralCancer].AreaRatio, 1e-9)
	assert.Equal(t, 0.6, summary[LabelTartar].MaxScore)
	_, hasCaries := summary[LabelCaries]
	assert.False(t, hasCaries, "labels without detections are not seeded")
}

func TestAggregate_CountsMatchDetections(t *testing.T) {
	dets := []Detection{
		{Label: LabelCaries, Score: 0.5},
		{Label: LabelNormal, Score: 0.3},
		{Label: LabelCaries, Score: 0.7},
		{Label: LabelTartar, Score: 0.2},
	}
	summary := Aggregate(dets, AggregateOptions{})
	total := 0
	for label, s := range summary {
		total += s.Count
		max := 0.0
		for _, d := range dets {
			if d.Label == label && d.Score > max {
				max = d.Score
			}
		}
		assert.Equal(t, max, s.MaxScore, "label %s", label)
	}
	assert.Equal(t, len(dets), total)
}
