package ena

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqport/sracatch/pkg/accession"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Config{
		PortalBase:        srv.URL,
		SDLBase:           srv.URL + "/sdl",
		HTTPClient:        srv.Client(),
		RequestsPerSecond: 1000,
	})
	return c, srv
}

func TestRunFastqsPaired(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/filereport", r.URL.Path)
		assert.Equal(t, "SRR123456", r.URL.Query().Get("accession"))
		assert.Equal(t, "read_run", r.URL.Query().Get("result"))
		_, _ = w.Write([]byte(`[{
			"run_accession": "SRR123456",
			"fastq_ftp": "ftp.sra.ebi.ac.uk/vol1/fastq/SRR123/SRR123456/SRR123456_1.fastq.gz;ftp.sra.ebi.ac.uk/vol1/fastq/SRR123/SRR123456/SRR123456_2.fastq.gz",
			"fastq_md5": "aaa111;bbb222",
			"fastq_bytes": "1000;2000"
		}]`))
	}))

	files, err := c.RunFastqs(context.Background(), accession.Run("SRR123456"))
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "https://ftp.sra.ebi.ac.uk/vol1/fastq/SRR123/SRR123456/SRR123456_1.fastq.gz", files[0].URL)
	assert.Equal(t, "era-fasp@fasp.sra.ebi.ac.uk:/vol1/fastq/SRR123/SRR123456/SRR123456_1.fastq.gz", files[0].FaspPath)
	assert.Equal(t, "aaa111", files[0].MD5)
	assert.Equal(t, int64(1000), files[0].Bytes)
	assert.Equal(t, "SRR123456_1.fastq.gz", files[0].Name())
	assert.Equal(t, "bbb222", files[1].MD5)
	assert.Equal(t, int64(2000), files[1].Bytes)
}

func TestRunFastqsNoFiles(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"run_accession": "SRR123456", "fastq_ftp": "", "fastq_md5": "", "fastq_bytes": ""}]`))
	}))

	_, err := c.RunFastqs(context.Background(), accession.Run("SRR123456"))
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestRunFastqsUnknownAccession(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	_, err := c.RunFastqs(context.Background(), accession.Run("SRR999999"))
	assert.True(t, IsNotFound(err))
}

func TestProjectRuns(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PRJNA621513", r.URL.Query().Get("accession"))
		_, _ = w.Write([]byte(`[
			{"run_accession": "SRR11578349"},
			{"run_accession": "SRR11578350"},
			{"run_accession": ""}
		]`))
	}))

	runs, err := c.ProjectRuns(context.Background(), accession.Project("PRJNA621513"))
	require.NoError(t, err)
	assert.Equal(t, []accession.Run{"SRR11578349", "SRR11578350"}, runs)
}

func TestAnnotationsAnchorsRunAccession(t *testing.T) {
	var gotFields string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFields = r.URL.Query().Get("fields")
		_, _ = w.Write([]byte(`[{"run_accession": "SRR1", "scientific_name": "Escherichia coli"}]`))
	}))

	rows, err := c.Annotations(context.Background(), "SRR1", []string{"scientific_name"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Escherichia coli", rows[0]["scientific_name"])
	assert.Equal(t, "run_accession,scientific_name", gotFields)
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"run_accession": "SRR1"}]`))
	}))

	rows, err := c.Annotations(context.Background(), "SRR1", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Annotations(context.Background(), "SRR1", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLocateContainer(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sdl", r.URL.Path)
		assert.Equal(t, "SRR123456", r.URL.Query().Get("acc"))
		_, _ = w.Write([]byte(`{
			"version": "2",
			"result": [{
				"bundle": "SRR123456",
				"status": 200,
				"files": [{
					"name": "SRR123456",
					"type": "sra",
					"size": 11629099,
					"md5": "deadbeef",
					"locations": [
						{"service": "s3", "region": "us-east-1", "link": "https://sra-pub-run-odp.s3.amazonaws.com/sra/SRR123456/SRR123456", "payRequired": false},
						{"service": "gs", "region": "us-east1", "link": "gs://sra-pub-run-gs/sra/SRR123456", "payRequired": true}
					]
				}]
			}]
		}`))
	}))

	t.Run("all services", func(t *testing.T) {
		locs, err := c.LocateContainer(context.Background(), accession.Run("SRR123456"), "")
		require.NoError(t, err)
		require.Len(t, locs, 2)
		assert.Equal(t, "s3", locs[0].Service)
		assert.Equal(t, int64(11629099), locs[0].Size)
		assert.Equal(t, "deadbeef", locs[0].MD5)
		assert.False(t, locs[0].PayRequired)
		assert.True(t, locs[1].PayRequired)
	})

	t.Run("filtered to gs", func(t *testing.T) {
		locs, err := c.LocateContainer(context.Background(), accession.Run("SRR123456"), "gs")
		require.NoError(t, err)
		require.Len(t, locs, 1)
		assert.Equal(t, "gs", locs[0].Service)
	})

	t.Run("missing service", func(t *testing.T) {
		_, err := c.LocateContainer(context.Background(), accession.Run("SRR123456"), "azure")
		assert.ErrorIs(t, err, ErrNoFiles)
	})
}

func TestLocateContainerErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"version": "2",
			"result": [{"bundle": "SRR0", "status": 404, "msg": "cannot resolve accession"}]
		}`))
	}))

	_, err := c.LocateContainer(context.Background(), accession.Run("SRR0"), "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "cannot resolve accession")
}

func TestLocationObjectRef(t *testing.T) {
	tests := []struct {
		name       string
		link       string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{name: "s3 scheme", link: "s3://sra-pub-run-odp/sra/SRR1/SRR1", wantBucket: "sra-pub-run-odp", wantKey: "sra/SRR1/SRR1"},
		{name: "gs scheme", link: "gs://sra-pub-run-gs/sra/SRR1", wantBucket: "sra-pub-run-gs", wantKey: "sra/SRR1"},
		{name: "virtual hosted s3", link: "https://sra-pub-run-odp.s3.amazonaws.com/sra/SRR1/SRR1", wantBucket: "sra-pub-run-odp", wantKey: "sra/SRR1/SRR1"},
		{name: "regional s3", link: "https://bucket.s3.us-east-1.amazonaws.com/key/path", wantBucket: "bucket", wantKey: "key/path"},
		{name: "path style s3", link: "https://s3.amazonaws.com/bucket/key", wantBucket: "bucket", wantKey: "key"},
		{name: "gcs https", link: "https://storage.googleapis.com/bucket/key/path", wantBucket: "bucket", wantKey: "key/path"},
		{name: "missing key", link: "s3://bucket-only", wantErr: true},
		{name: "unknown host", link: "https://example.com/whatever", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := Location{Link: tt.link}.ObjectRef()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}
