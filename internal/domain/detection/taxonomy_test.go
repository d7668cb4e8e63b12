package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want Label
	}{
		{"caries", LabelCaries},
		{"Cavity", LabelCaries},
		{"  decay ", LabelCaries},
		{"tooth-decay", LabelCaries},
		{"calculus", LabelTartar},
		{"PLAQUE", LabelTartar},
		{"tartar", LabelTartar},
		{"lesion", LabelOralCancer},
		{"oral cancer", LabelOralCancer},
		{"oral_cancer", LabelOralCancer},
		{"normal", LabelNormal},
		{"", LabelNormal},
		{"gingivitis", LabelNormal},
		{"🦷", LabelNormal},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalizeOutputIsAlwaysInTaxonomy(t *testing.T) {
	inputs := []string{"x", "CARIES", "lesion ", "\t", "calculus", "something else entirely"}
	for _, in := range inputs {
		assert.Contains(t, Taxonomy(), Normalize(in))
	}
}

func TestRank(t *testing.T) {
	assert.Less(t, Rank(LabelCaries), Rank(LabelTartar))
	assert.Less(t, Rank(LabelOralCancer), Rank(LabelNormal))
	assert.Equal(t, len(Taxonomy()), Rank(Label("unknown")))
}
