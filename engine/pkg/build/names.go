package build

import (
	"path"
	"strings"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
)

// isDeltaFile reports whether name is an RF2 delta text file.
func isDeltaFile(name string) bool {
	base := path.Base(name)
	return strings.HasSuffix(base, rf2.TxtFileExtension) && strings.Contains(base, rf2.Delta)
}

// fullOrSnapshotName swaps the content subtype of a delta file name.
func fullOrSnapshotName(deltaName, kind string) string {
	return renameContentType(deltaName, rf2.Delta, kind)
}

// renameContentType replaces only "<from>_" and "<from>-" since refset
// names may contain "Delta".
func renameContentType(name, from, to string) string {
	name = strings.ReplaceAll(name, from+rf2.FileNameSeparator, to+rf2.FileNameSeparator)
	return strings.ReplaceAll(name, from+"-", to+"-")
}

func betaName(name string, beta bool) string {
	if !beta || strings.HasPrefix(name, rf2.BetaPrefix) {
		return name
	}
	return rf2.BetaPrefix + name
}

// dependencyDeltaName is the international delta equivalent of an
// extension delta, e.g. sct2_Concept_Delta_INT for sct2_Concept_Delta_SE1000052.
func dependencyDeltaName(name string) string {
	parts := strings.Split(strings.TrimPrefix(name, rf2.BetaPrefix), rf2.FileNameSeparator)
	if len(parts) < 3 {
		return name
	}
	return strings.Join(parts[:3], rf2.FileNameSeparator) + rf2.FileNameSeparator + "INT" + rf2.FileNameSeparator + "00000000" + rf2.TxtFileExtension
}
