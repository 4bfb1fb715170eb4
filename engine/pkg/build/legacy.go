package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ihtsdo/rf2release/engine/pkg/artifact"
	"github.com/ihtsdo/rf2release/engine/pkg/depgraph"
	"github.com/ihtsdo/rf2release/engine/pkg/idgen"
	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/store"
)

const simpleMapHeader = "id\teffectiveTime\tactive\tmoduleId\trefsetId\treferencedComponentId\tmapTarget"

var legacySchemes = []struct {
	scheme   idgen.Scheme
	refsetID string
}{
	{idgen.SchemeCTV3ID, rf2.CTV3IDRefsetID},
	{idgen.SchemeSNOMEDID, rf2.SNOMEDIDRefsetID},
}

// assignLegacyIDs requests legacy ids for the concepts created in this build
// and adds them as map members to the staged SimpleMap delta. Concepts are
// requested parents first. It returns the SimpleMap delta name and the
// number of members added.
func (r *Runner) assignLegacyIDs(ctx context.Context, staging *artifact.Dir, staged []string) (string, int, error) {
	concepts, err := r.newConcepts(ctx, staging, staged)
	if err != nil {
		return "", 0, err
	}
	mapName := stagedFileLike(staged, rf2.SimpleMapFileIdentifier)
	if mapName == "" {
		mapName = betaName(rf2.DER2+"_sRefset_"+rf2.SimpleMapFileIdentifier+rf2.Delta+"_INT_"+r.cfg.EffectiveTime+rf2.TxtFileExtension, r.cfg.Beta)
	}
	if len(concepts) == 0 {
		r.log.Info("build: no new concepts need legacy ids")
		return mapName, 0, nil
	}

	ordered, err := r.parentsFirst(ctx, staging, staged, concepts)
	if err != nil {
		return "", 0, err
	}
	ids := make([]uuid.UUID, len(ordered))
	for i, sctid := range ordered {
		ids[i] = concepts[sctid]
	}

	var lines []string
	for _, s := range legacySchemes {
		if s.scheme == idgen.SchemeSNOMEDID && !r.cfg.SNOMEDIDs {
			continue
		}
		assigned, err := r.cfg.Identifiers.GetSchemeIDs(ctx, ids, s.scheme)
		if err != nil {
			return "", 0, err
		}
		for i, id := range ids {
			target, ok := assigned[id]
			if !ok {
				return "", 0, fmt.Errorf("no %s assigned to concept %s", s.scheme, ordered[i])
			}
			lines = append(lines, rf2.JoinLine([]string{
				uuid.NewString(), r.cfg.EffectiveTime, rf2.BooleanTrue, rf2.InternationalCoreModuleID,
				s.refsetID, ordered[i], target,
			}))
		}
	}

	if err := appendLines(ctx, staging, mapName, lines); err != nil {
		return "", 0, err
	}
	r.log.Info("build: legacy ids assigned", "concepts", len(ordered), "members", len(lines), "file", mapName)
	return mapName, len(lines), nil
}

// newConcepts maps the SCTIDs of concepts minted in this build to their
// UUIDs.
func (r *Runner) newConcepts(ctx context.Context, staging *artifact.Dir, staged []string) (map[string]uuid.UUID, error) {
	partition := rf2.PartitionConcept.ID(r.cfg.Identifiers.Namespace())
	minted := make(map[string]uuid.UUID)
	for key, sctid := range r.cfg.Identifiers.Snapshot() {
		s := strconv.FormatInt(sctid, 10)
		if len(s) < 3 || s[len(s)-3:len(s)-1] != partition {
			continue
		}
		id, err := uuid.Parse(key)
		if err != nil {
			continue
		}
		minted[s] = id
	}

	concepts := make(map[string]uuid.UUID)
	name := stagedFileLike(staged, rf2.FileNameSeparator+"Concept"+rf2.FileNameSeparator)
	if name == "" || len(minted) == 0 {
		return concepts, nil
	}
	err := scanStaged(ctx, staging, name, func(cols []string) {
		if id, ok := minted[cols[0]]; ok {
			concepts[cols[0]] = id
		}
	})
	return concepts, err
}

// parentsFirst orders concepts so that each comes after its new IS-A
// parents. Stated relationships are used when staged, inferred otherwise.
func (r *Runner) parentsFirst(ctx context.Context, staging *artifact.Dir, staged []string, concepts map[string]uuid.UUID) ([]string, error) {
	g := depgraph.New()
	nodes := make([]string, 0, len(concepts))
	for sctid := range concepts {
		nodes = append(nodes, sctid)
	}
	slices.Sort(nodes)
	g.AddNodes(nodes...)

	name := stagedFileLike(staged, rf2.StatedRelationshipTypeMarker+"Relationship")
	if name == "" {
		name = stagedFileLike(staged, rf2.FileNameSeparator+"Relationship"+rf2.FileNameSeparator)
	}
	if name != "" {
		var edgeErr error
		err := scanStaged(ctx, staging, name, func(cols []string) {
			if len(cols) < 8 || cols[2] != rf2.BooleanTrue || cols[7] != rf2.IsA {
				return
			}
			source, dest := cols[4], cols[5]
			_, newSource := concepts[source]
			_, newDest := concepts[dest]
			if !newSource || !newDest || source == dest || g.EdgeExists(dest, source) {
				return
			}
			if err := g.AddEdge(dest, source); err != nil && edgeErr == nil {
				edgeErr = err
			}
		})
		if err != nil {
			return nil, err
		}
		if edgeErr != nil {
			return nil, edgeErr
		}
	}
	ordered, err := depgraph.TopologicalSort(g)
	if err != nil {
		return nil, fmt.Errorf("failed to order new concepts: %w", err)
	}
	return ordered, nil
}

// stagedFileLike returns the first staged delta whose base name contains
// marker.
func stagedFileLike(staged []string, marker string) string {
	for _, s := range staged {
		if strings.Contains(path.Base(s), marker) {
			return s
		}
	}
	return ""
}

func scanStaged(ctx context.Context, staging *artifact.Dir, name string, fn func(cols []string)) error {
	rc, err := staging.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	err = store.ScanPrevious(ctx, rc, name, func(_ int, cols []string) error {
		fn(cols)
		return nil
	})
	if errors.Is(err, store.ErrEmptyInput) {
		return nil
	}
	return err
}

// appendLines rewrites name in staging with lines added after its current
// content, creating it with a SimpleMap header if missing.
func appendLines(ctx context.Context, staging *artifact.Dir, name string, lines []string) error {
	existing, err := staging.Open(ctx, name)
	if err != nil && !errors.Is(err, artifact.ErrNotFound) {
		return err
	}
	w, err := staging.Create(ctx, name)
	if err != nil {
		if existing != nil {
			existing.Close()
		}
		return err
	}
	if existing != nil {
		_, err = io.Copy(w, existing)
		existing.Close()
	} else {
		_, err = io.WriteString(w, simpleMapHeader+rf2.LineEnding)
	}
	for _, line := range lines {
		if err != nil {
			break
		}
		_, err = io.WriteString(w, line+rf2.LineEnding)
	}
	if cerr := w.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to add legacy ids to %s: %w", name, err)
	}
	return nil
}
