package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// batchModuleID is sent as the module id for batch requests; the service
// does not use it to mint ids.
const batchModuleID = "1"

// IdentifierFactory mints and caches SCTIDs for content UUIDs.
type IdentifierFactory interface {
	GetSCTID(ctx context.Context, componentUUID, partitionID, moduleID string) (int64, error)
	GetSCTIDs(ctx context.Context, componentUUIDs []string, partitionID, moduleID string) (map[string]int64, error)
	GetSCTIDFromCache(componentUUID string) (int64, bool)
}

func isUUIDValue(v string) bool {
	return strings.Contains(v, "-")
}

// SCTIDTransformation replaces a UUID in Column with a newly minted SCTID.
// Run as a batch it resolves the whole buffer with one factory call.
type SCTIDTransformation struct {
	Column       int
	ModuleColumn int
	PartitionID  string
	Factory      IdentifierFactory
}

func (t SCTIDTransformation) TransformLine(ctx context.Context, cols []string) error {
	if err := column(cols, t.Column); err != nil {
		return err
	}
	if !isUUIDValue(cols[t.Column]) {
		return nil
	}
	if err := column(cols, t.ModuleColumn); err != nil {
		return err
	}
	sctid, err := t.Factory.GetSCTID(ctx, cols[t.Column], t.PartitionID, cols[t.ModuleColumn])
	if err != nil {
		return fmt.Errorf("%w: SCTID creation request failed: %w", ErrTransformation, err)
	}
	cols[t.Column] = strconv.FormatInt(sctid, 10)
	return nil
}

func (t SCTIDTransformation) TransformLines(ctx context.Context, rows [][]string) error {
	var uuids []string
	for _, cols := range rows {
		if t.Column < len(cols) && isUUIDValue(cols[t.Column]) {
			uuids = append(uuids, cols[t.Column])
		}
	}
	if len(uuids) == 0 {
		return nil
	}
	sctids, err := t.Factory.GetSCTIDs(ctx, uuids, t.PartitionID, batchModuleID)
	if err != nil {
		return fmt.Errorf("%w: SCTID list creation request failed: %w", ErrTransformation, err)
	}
	for _, cols := range rows {
		if t.Column >= len(cols) || !isUUIDValue(cols[t.Column]) {
			continue
		}
		sctid, ok := sctids[cols[t.Column]]
		if !ok {
			return fmt.Errorf("%w: no SCTID for UUID %s", ErrTransformation, cols[t.Column])
		}
		cols[t.Column] = strconv.FormatInt(sctid, 10)
	}
	return nil
}

// SCTIDFromCache replaces a UUID reference with the SCTID minted for it
// earlier in the build.
type SCTIDFromCache struct {
	Column  int
	Factory IdentifierFactory
}

func (t SCTIDFromCache) TransformLine(_ context.Context, cols []string) error {
	if err := column(cols, t.Column); err != nil {
		return err
	}
	v := cols[t.Column]
	if !isUUIDValue(v) {
		return nil
	}
	sctid, ok := t.Factory.GetSCTIDFromCache(v)
	if !ok {
		return fmt.Errorf("%w: no SCTID assigned in this build for UUID %s in column %d", ErrTransformation, v, t.Column)
	}
	cols[t.Column] = strconv.FormatInt(sctid, 10)
	return nil
}
