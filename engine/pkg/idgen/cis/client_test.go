package cis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ihtsdo/rf2release/engine/pkg/idgen"
	"github.com/ihtsdo/rf2release/utils/pkg/retry"
	rf2testing "github.com/ihtsdo/rf2release/utils/pkg/testing"
)

// fakeService is an in-process identifier service. Bulk jobs report RUNNING
// once before completing.
type fakeService struct {
	mu          sync.Mutex
	logins      int
	next        int64
	jobs        map[string][]jobRecord
	polled      map[string]bool
	rejectToken string
	failNext    int
	bulkSizes   []int
	comments    []string
}

func newFakeService() *fakeService {
	return &fakeService{next: 100, jobs: map[string][]jobRecord{}, polled: map[string]bool{}}
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logins++
		n := f.logins
		f.mu.Unlock()
		writeJSON(w, map[string]string{"token": "tok" + strconv.Itoa(n)})
	})
	mux.HandleFunc("POST /sct/generate", f.authed(func(w http.ResponseWriter, r *http.Request) {
		var req sctidRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.next++
		id := f.next
		f.comments = append(f.comments, req.Comment)
		f.mu.Unlock()
		writeJSON(w, map[string]string{"sctid": strconv.FormatInt(id, 10) + req.PartitionID + "1"})
	}))
	mux.HandleFunc("POST /sct/bulk/generate", f.authed(func(w http.ResponseWriter, r *http.Request) {
		var req sctidRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, len(req.SystemIDs), req.Quantity)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.bulkSizes = append(f.bulkSizes, req.Quantity)
		var records []jobRecord
		for _, sys := range req.SystemIDs {
			f.next++
			records = append(records, jobRecord{SystemID: sys, SCTID: json.Number(strconv.FormatInt(f.next, 10) + req.PartitionID + "1")})
		}
		writeJSON(w, map[string]any{"id": f.addJob(records)})
	}))
	mux.HandleFunc("POST /scheme/{scheme}/bulk/generate", f.authed(func(w http.ResponseWriter, r *http.Request) {
		var req schemeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		defer f.mu.Unlock()
		var records []jobRecord
		for i, sys := range req.SystemIDs {
			records = append(records, jobRecord{SystemID: sys, SchemeID: r.PathValue("scheme") + "-" + strconv.Itoa(i)})
		}
		writeJSON(w, map[string]any{"id": f.addJob(records)})
	}))
	mux.HandleFunc("GET /bulk/jobs/{id}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		if id == "bad" {
			writeJSON(w, jobStatusResponse{Status: jobCompletedWithError, Log: "quota exceeded"})
			return
		}
		if !f.polled[id] {
			f.polled[id] = true
			writeJSON(w, jobStatusResponse{Status: jobRunning})
			return
		}
		writeJSON(w, jobStatusResponse{Status: jobCompletedWithSuccess})
	}))
	mux.HandleFunc("GET /bulk/jobs/{id}/records", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, f.jobs[r.PathValue("id")])
	}))
	return mux
}

func (f *fakeService) addJob(records []jobRecord) int {
	id := len(f.jobs) + 1
	f.jobs[strconv.Itoa(id)] = records
	return id
}

func (f *fakeService) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		f.mu.Lock()
		reject := token == "" || token == f.rejectToken
		fail := f.failNext > 0
		if fail {
			f.failNext--
		}
		f.mu.Unlock()
		if reject {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if fail {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeService, batchSize int) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(Config{
		Logger:            rf2testing.NewLogger(),
		BaseURL:           srv.URL + "/",
		Username:          "user",
		Password:          "secret",
		BatchSize:         batchSize,
		RequestsPerSecond: 1000,
		JobPollInterval:   time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

var testRequest = idgen.Request{Namespace: 0, PartitionID: "00", ReleaseID: "20140731", ExecutionID: "exec-1"}

func TestRF2_CIS_CreateSCTID(t *testing.T) {
	t.Parallel()

	f := newFakeService()
	c := newTestClient(t, f, 10)
	ctx := context.Background()

	id, err := c.CreateSCTID(ctx, testRequest, uuid.New())
	require.NoError(t, err)
	require.Equal(t, int64(101001), id)

	_, err = c.CreateSCTID(ctx, testRequest, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, f.logins)
	require.Equal(t, []string{testRequest.Comment(), testRequest.Comment()}, f.comments)
}

func TestRF2_CIS_CreateSCTIDs(t *testing.T) {
	t.Parallel()

	t.Run("split into bulk jobs", func(t *testing.T) {
		t.Parallel()
		f := newFakeService()
		c := newTestClient(t, f, 2)

		ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
		got, err := c.CreateSCTIDs(context.Background(), testRequest, ids)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for _, id := range ids {
			require.True(t, strings.HasSuffix(strconv.FormatInt(got[id], 10), "001"))
		}
		require.Equal(t, []int{2, 1}, f.bulkSizes)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		f := newFakeService()
		c := newTestClient(t, f, 2)
		got, err := c.CreateSCTIDs(context.Background(), testRequest, nil)
		require.NoError(t, err)
		require.Empty(t, got)
		require.Zero(t, f.logins)
	})
}

func TestRF2_CIS_CreateSchemeIDs(t *testing.T) {
	t.Parallel()

	f := newFakeService()
	c := newTestClient(t, f, 10)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	got, err := c.CreateSchemeIDs(context.Background(), idgen.SchemeCTV3ID, ids, "legacy")
	require.NoError(t, err)
	require.Equal(t, "CTV3ID-0", got[ids[0]])
	require.Equal(t, "CTV3ID-1", got[ids[1]])
}

func TestRF2_CIS_Errors(t *testing.T) {
	t.Parallel()

	t.Run("server errors are retryable", func(t *testing.T) {
		t.Parallel()
		f := newFakeService()
		f.failNext = 1
		c := newTestClient(t, f, 10)

		_, err := c.CreateSCTID(context.Background(), testRequest, uuid.New())
		require.Error(t, err)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		require.Equal(t, http.StatusServiceUnavailable, se.StatusCode())
		require.True(t, retry.IsRetryable(err))
		require.True(t, idgen.IsTransient(err))

		_, err = c.CreateSCTID(context.Background(), testRequest, uuid.New())
		require.NoError(t, err)
	})

	t.Run("rejected token forces a new login", func(t *testing.T) {
		t.Parallel()
		f := newFakeService()
		f.rejectToken = "tok1"
		c := newTestClient(t, f, 10)

		_, err := c.CreateSCTID(context.Background(), testRequest, uuid.New())
		require.ErrorIs(t, err, idgen.ErrTransient)

		_, err = c.CreateSCTID(context.Background(), testRequest, uuid.New())
		require.NoError(t, err)
		require.Equal(t, 2, f.logins)
	})

	t.Run("failed bulk job", func(t *testing.T) {
		t.Parallel()
		f := newFakeService()
		c := newTestClient(t, f, 10)

		mux := http.NewServeMux()
		mux.Handle("/", f.handler(t))
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/sct/bulk/generate" {
				writeJSON(w, map[string]string{"id": "bad"})
				return
			}
			mux.ServeHTTP(w, r)
		}))
		t.Cleanup(srv.Close)
		c.cfg.BaseURL = srv.URL

		_, err := c.CreateSCTIDs(context.Background(), testRequest, []uuid.UUID{uuid.New()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "quota exceeded")
		require.False(t, idgen.IsTransient(err))
	})
}

func TestRF2_CIS_Config(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "http://localhost"})
	require.Error(t, err)
	_, err = New(Config{Logger: rf2testing.NewLogger()})
	require.Error(t, err)

	c, err := New(Config{Logger: rf2testing.NewLogger(), BaseURL: "http://localhost/api/"})
	require.NoError(t, err)
	require.Equal(t, "http://localhost/api", c.cfg.BaseURL)
	require.Equal(t, DefaultBatchSize, c.cfg.BatchSize)
	require.Equal(t, DefaultJobPollInterval, c.cfg.JobPollInterval)
	require.NotNil(t, c.cfg.Clock)
}
