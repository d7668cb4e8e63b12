package detection

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "denticheck-server/internal/platform/errors"
)

// ClassTable resolves model class ids to names. The version travels with
// every outcome so results can be traced to the table that produced them.
type ClassTable struct {
	Version string
	names   map[int]string
}

// NewClassTable copies names; ids must be non-negative and names non-blank.
func NewClassTable(version string, names map[int]string) (ClassTable, error) {
	const op = "detection.classtable"
	if strings.TrimSpace(version) == "" {
		return ClassTable{}, apperrors.New(apperrors.KindConfig, op, "class table version is required")
	}
	if len(names) == 0 {
		return ClassTable{}, apperrors.New(apperrors.KindConfig, op, "class table is empty")
	}
	copied := make(map[int]string, len(names))
	for id, name := range names {
		if id < 0 || strings.TrimSpace(name) == "" {
			return ClassTable{}, apperrors.New(apperrors.KindConfig, op, fmt.Sprintf("invalid class entry %d=%q", id, name))
		}
		copied[id] = name
	}
	return ClassTable{Version: version, names: copied}, nil
}

// Name returns the class name and whether the id is known.
func (t ClassTable) Name(id int) (string, bool) {
	name, ok := t.names[id]
	return name, ok
}

func (t ClassTable) Len() int {
	return len(t.names)
}

// IDs returns the known class ids in ascending order.
func (t ClassTable) IDs() []int {
	ids := make([]int, 0, len(t.names))
	for id := range t.names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type classFile struct {
	Version string         `yaml:"version"`
	Classes map[int]string `yaml:"classes"`
}

// LoadClassTable reads a YAML document of the form
//
//	version: dental-yolo-v2
//	classes: {0: caries, 1: calculus}
func LoadClassTable(path string) (ClassTable, error) {
	const op = "detection.load_classes"
	data, err := os.ReadFile(path)
	if err != nil {
		return ClassTable{}, apperrors.Wrap(apperrors.KindConfig, op, "read class table file", err)
	}
	var doc classFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ClassTable{}, apperrors.Wrap(apperrors.KindConfig, op, "parse class table file", err)
	}
	return NewClassTable(doc.Version, doc.Classes)
}
