package export

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var records = []Record{
	{"id": "a", "severity": "error", "message": "<boom>"},
	{"id": "b", "severity": "info"},
}

func TestEncodeJSONLines(t *testing.T) {
	data, err := EncodeJSONLines(records)
	require.NoError(t, err)
	assert.Equal(t,
		`{"id":"a","message":"<boom>","severity":"error"}`+"\n"+`{"id":"b","severity":"info"}`+"\n",
		string(data))

	_, err = EncodeJSONLines([]Record{{"bad": make(chan int)}})
	assert.Error(t, err)
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	sink := NewFileSink(dir)

	path, err := sink.Write(context.Background(), "logs-2014-02-20", records)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "logs-2014-02-20.jsonl"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	_, err = sink.Write(context.Background(), "../escape", records)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sink.Write(ctx, "cancelled", records)
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeS3 stores objects in memory and answers the three calls the sink makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	headers map[string]http.Header
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string   `xml:"Name"`
	KeyCount    int      `xml:"KeyCount"`
	IsTruncated bool     `xml:"IsTruncated"`
	Contents    []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[path] = body
		f.headers[path] = r.Header.Clone()
		w.Header().Set("ETag", `"etag"`)
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		bucket := strings.TrimSuffix(path, "/")
		prefix := bucket + "/" + r.URL.Query().Get("prefix")
		result := listResult{Name: bucket}
		for key := range f.objects {
			if strings.HasPrefix(key, prefix) {
				result.Contents = append(result.Contents, struct {
					Key string `xml:"Key"`
				}{Key: strings.TrimPrefix(key, bucket+"/")})
			}
		}
		result.KeyCount = len(result.Contents)
		w.Header().Set("Content-Type", "application/xml")
		_ = xml.NewEncoder(w).Encode(result)
	case r.Method == http.MethodGet:
		body, ok := f.objects[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Sink(t *testing.T) (*S3Sink, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, headers: map[string]http.Header{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	sink, err := NewS3Sink(S3Config{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "exports",
		Prefix:         "flox/",
		AccessKey:      "access",
		SecretKey:      "secret",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	sink.now = func() time.Time { return time.Date(2014, 2, 20, 20, 15, 0, 0, time.UTC) }
	return sink, fake
}

func TestS3Sink(t *testing.T) {
	sink, fake := newTestS3Sink(t)
	ctx := context.Background()

	location, err := sink.Write(ctx, "logs", records)
	require.NoError(t, err)
	assert.Equal(t, "s3://exports/flox/2014-02-20/logs.jsonl", location)

	stored := fake.objects["exports/flox/2014-02-20/logs.jsonl"]
	expected, err := EncodeJSONLines(records)
	require.NoError(t, err)
	assert.Equal(t, expected, stored)
	assert.Equal(t, "2", fake.headers["exports/flox/2014-02-20/logs.jsonl"].Get("X-Amz-Meta-Record-Count"))

	data, err := sink.Get(ctx, "flox/2014-02-20/logs.jsonl")
	require.NoError(t, err)
	assert.Equal(t, expected, data)

	keys, err := sink.List(ctx, time.Date(2014, 2, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"flox/2014-02-20/logs.jsonl"}, keys)

	_, err = sink.Get(ctx, "flox/missing.jsonl")
	assert.Error(t, err)
}

func TestNewS3SinkRequiresBucket(t *testing.T) {
	_, err := NewS3Sink(S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
