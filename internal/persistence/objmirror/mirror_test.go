package objmirror

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]string
	auth    []string
	fail    int
}

func (b *fakeBucket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.Method != http.MethodPut {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if b.fail > 0 {
		b.fail--
		rw.WriteHeader(http.StatusServiceUnavailable)
		_, _ = rw.Write([]byte("slow down"))
		return
	}
	body, _ := io.ReadAll(r.Body)
	b.objects[r.URL.Path] = string(body)
	b.auth = append(b.auth, r.Header.Get("Authorization"))
	rw.WriteHeader(http.StatusOK)
}

func newTestMirror(t *testing.T, bucket *fakeBucket, baseDir string) *Mirror {
	t.Helper()
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{Endpoint: srv.URL, Bucket: "boards", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(c, baseDir, Options{Prefix: "/prod/", Workers: 1, Backoff: time.Millisecond}, logger)
}

func writeFile(t *testing.T, p, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestMirror_UploadsRelativeKeys(t *testing.T) {
	dir := t.TempDir()
	bucket := &fakeBucket{objects: map[string]string{}, fail: 1}
	m := newTestMirror(t, bucket, dir)

	a := filepath.Join(dir, "snapshots", "12.snap.zst")
	b := filepath.Join(dir, "archive", "epoch_0001", "1000.snap.zst")
	writeFile(t, a, "a")
	writeFile(t, b, "b")
	m.Enqueue(a)
	m.Enqueue(b)
	m.Close()

	st := m.Stats()
	if st.Enqueued != 2 || st.Uploaded != 2 || st.Failed != 0 || st.Dropped != 0 {
		t.Fatalf("stats=%+v", st)
	}
	var keys []string
	for k := range bucket.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"/boards/prod/archive/epoch_0001/1000.snap.zst", "/boards/prod/snapshots/12.snap.zst"}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("keys=%v want %v", keys, want)
	}
	if bucket.objects[want[1]] != "a" {
		t.Fatalf("body=%q", bucket.objects[want[1]])
	}
	for _, h := range bucket.auth {
		if !strings.HasPrefix(h, "AWS4-HMAC-SHA256 Credential=AK/") || !strings.Contains(h, "/auto/s3/aws4_request") {
			t.Fatalf("authorization=%q", h)
		}
	}
}

func TestMirror_SkipsOutsideBaseDir(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	bucket := &fakeBucket{objects: map[string]string{}}
	m := newTestMirror(t, bucket, dir)

	p := filepath.Join(other, "x.snap.zst")
	writeFile(t, p, "x")
	m.Enqueue(p)
	m.Enqueue(filepath.Join(dir, "missing.snap.zst"))
	m.Close()
	m.Close()

	if st := m.Stats(); st.Failed != 2 || st.Uploaded != 0 {
		t.Fatalf("stats=%+v", st)
	}
	if len(bucket.objects) != 0 {
		t.Fatalf("unexpected uploads: %v", bucket.objects)
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "example.com", Bucket: "b"}); err == nil {
		t.Fatalf("expected error without credentials")
	}
	c, err := NewClient(Config{Endpoint: "example.com/", Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.endpoint != "https://example.com" {
		t.Fatalf("endpoint=%q", c.endpoint)
	}
}

func TestNilMirror(t *testing.T) {
	var m *Mirror
	m.Enqueue("x")
	m.Close()
	if st := m.Stats(); st != (Stats{}) {
		t.Fatalf("stats=%+v", st)
	}
}
