package rf2

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrBadConfiguration is returned for composite key settings that do not fit
// the file they are applied to.
var ErrBadConfiguration = errors.New("bad configuration")

const refsetIDColumn = 4

// CompositeKeyPattern selects the columns that identify a refset member
// independently of its member id.
type CompositeKeyPattern struct {
	Indexes []int
	Custom  bool
}

// Key joins the selected columns of a split row.
func (p *CompositeKeyPattern) Key(cols []string) string {
	var b strings.Builder
	for i, idx := range p.Indexes {
		if i > 0 {
			b.WriteString(ColumnSeparator)
		}
		if idx < len(cols) {
			b.WriteString(cols[idx])
		}
	}
	return b.String()
}

// CompositeKeyPatternFactory builds composite key patterns by refset file
// type, with per-refset overrides.
type CompositeKeyPatternFactory struct {
	custom map[string][]int
}

// NewCompositeKeyPatternFactory takes custom key columns keyed by refset id.
func NewCompositeKeyPatternFactory(custom map[string][]int) *CompositeKeyPatternFactory {
	return &CompositeKeyPatternFactory{custom: custom}
}

func (f *CompositeKeyPatternFactory) Pattern(schema *TableSchema, refsetID string) (*CompositeKeyPattern, error) {
	indexes := []int{refsetIDColumn}
	custom := false
	if cols, ok := f.custom[refsetID]; ok {
		custom = true
		indexes = append(indexes, cols...)
	} else {
		switch {
		case schema.FileIs(ExtendedMapFileIdentifier), schema.FileIs(ComplexMapFileIdentifier):
			indexes = append(indexes, 5, 7, 10)
		case schema.FileIs(RefsetDescriptorFileIdentifier):
			// attributeOrder makes descriptor rows unique
			indexes = append(indexes, 5, 8)
		case schema.FileIs(SimpleMapFileIdentifier), schema.FileIs(AssociationReferenceFileIdentifier):
			indexes = append(indexes, 5, 6)
		case schema.FileIs(ModuleDependencyFileIdentifier):
			indexes = append(indexes, 5, 6, 7)
		default:
			indexes = append(indexes, 5)
		}
	}
	slices.Sort(indexes)
	indexes = slices.Compact(indexes)

	if last := indexes[len(indexes)-1]; last >= len(schema.Fields) || indexes[0] < 0 {
		return nil, fmt.Errorf("%w: reference set composite key index %d is out of bounds for file %s", ErrBadConfiguration, last, schema.Filename)
	}
	return &CompositeKeyPattern{Indexes: indexes, Custom: custom}, nil
}

// ParseCompositeKeys reads custom key columns in the form
// "447562003=9|447200001=13,14". Entries may also be passed separately.
func ParseCompositeKeys(entries ...string) (map[string][]int, error) {
	keys := make(map[string][]int)
	for _, entry := range entries {
		for part := range strings.SplitSeq(entry, "|") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			refsetID, cols, ok := strings.Cut(part, "=")
			refsetID = strings.TrimSpace(refsetID)
			if !ok || refsetID == "" {
				return nil, fmt.Errorf("%w: composite key %q is not refsetId=columns", ErrBadConfiguration, part)
			}
			var indexes []int
			for col := range strings.SplitSeq(cols, ",") {
				idx, err := strconv.Atoi(strings.TrimSpace(col))
				if err != nil || idx < 0 {
					return nil, fmt.Errorf("%w: composite key column %q of refset %s", ErrBadConfiguration, col, refsetID)
				}
				indexes = append(indexes, idx)
			}
			keys[refsetID] = indexes
		}
	}
	return keys, nil
}
