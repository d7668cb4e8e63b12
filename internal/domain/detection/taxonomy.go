package detection

import "strings"

// Label is one of the fixed finding categories exposed to callers.
type Label string

const (
	LabelCaries     Label = "caries"
	LabelTartar     Label = "tartar"
	LabelOralCancer Label = "oral_cancer"
	LabelNormal     Label = "normal"
)

// Taxonomy lists every label in presentation order.
func Taxonomy() []Label {
	return []Label{LabelCaries, LabelTartar, LabelOralCancer, LabelNormal}
}

// Rank orders labels by Taxonomy; unknown values sort after all known ones.
func Rank(l Label) int {
	for i, known := range Taxonomy() {
		if known == l {
			return i
		}
	}
	return len(Taxonomy())
}

// synonyms is the only place raw model vocabulary is mapped onto labels.
var synonyms = map[string]Label{
	"caries":      LabelCaries,
	"cavity":      LabelCaries,
	"cavities":    LabelCaries,
	"decay":       LabelCaries,
	"tooth_decay": LabelCaries,

	"tartar":   LabelTartar,
	"calculus": LabelTartar,
	"plaque":   LabelTartar,

	"oral_cancer": LabelOralCancer,
	"lesion":      LabelOralCancer,
	"cancer":      LabelOralCancer,

	"normal":  LabelNormal,
	"healthy": LabelNormal,
}

// Normalize maps a raw class name to a Label. It is total: names that are
// empty or not in the synonym table map to LabelNormal.
func Normalize(raw string) Label {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if label, ok := synonyms[key]; ok {
		return label
	}
	return LabelNormal
}
