package idgen

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

const (
	offlineFirstSCTID   = 800000
	offlineCheckDigit   = "1"
	offlineCTV3Prefix   = "XUsW"
	offlineSNOMEDPrefix = "R-F"
)

// OfflineClient issues placeholder identifiers without a remote service.
// The ids are not valid for publication; it exists for dry runs and tests.
type OfflineClient struct {
	mu         sync.Mutex
	sctid      int64
	snomedNext int
	ctv3Char   rune
}

var _ Client = (*OfflineClient)(nil)

func NewOfflineClient() *OfflineClient {
	return &OfflineClient{sctid: offlineFirstSCTID, snomedNext: 1, ctv3Char: 'A' - 1}
}

func (c *OfflineClient) CreateSCTID(_ context.Context, req Request, _ uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next(req.PartitionID)
}

func (c *OfflineClient) CreateSCTIDs(_ context.Context, req Request, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uuid.UUID]int64, len(ids))
	for _, id := range ids {
		sctid, err := c.next(req.PartitionID)
		if err != nil {
			return nil, err
		}
		out[id] = sctid
	}
	return out, nil
}

func (c *OfflineClient) next(partitionID string) (int64, error) {
	c.sctid++
	return strconv.ParseInt(strconv.FormatInt(c.sctid, 10)+partitionID+offlineCheckDigit, 10, 64)
}

func (c *OfflineClient) CreateSchemeIDs(_ context.Context, scheme Scheme, ids []uuid.UUID, _ string) (map[uuid.UUID]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		switch scheme {
		case SchemeCTV3ID:
			// cycles A-Z then a-z
			c.ctv3Char++
			if c.ctv3Char == 'Z'+1 {
				c.ctv3Char = 'a'
			} else if c.ctv3Char > 'z' {
				c.ctv3Char = 'A'
			}
			out[id] = offlineCTV3Prefix + string(c.ctv3Char)
		case SchemeSNOMEDID:
			out[id] = fmt.Sprintf("%s%04x", offlineSNOMEDPrefix, c.snomedNext)
			c.snomedNext++
		default:
			return nil, fmt.Errorf("unsupported scheme %q", scheme)
		}
	}
	return out, nil
}
