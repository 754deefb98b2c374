package largeio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// countingWriter records the size of every underlying Write call
type countingWriter struct {
	buf   bytes.Buffer
	calls []int
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	cw.calls = append(cw.calls, len(p))
	return cw.buf.Write(p)
}

// countingReader records the size of every underlying Read call
type countingReader struct {
	r     io.Reader
	calls []int
}

func (cr *countingReader) Read(p []byte) (int, error) {
	cr.calls = append(cr.calls, len(p))
	return cr.r.Read(p)
}

type failingWriter struct {
	after int
	err   error
	calls int
}

func (fw *failingWriter) Write(p []byte) (int, error) {
	fw.calls++
	if fw.calls > fw.after {
		return 0, fw.err
	}
	return len(p), nil
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

func TestWriteChunking(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		chunk     int
		wantCalls []int
	}{
		{"smaller than chunk", 10, 16, []int{10}},
		{"exactly one chunk", 16, 16, []int{16}},
		{"one byte over", 17, 16, []int{16, 1}},
		{"several chunks", 50, 16, []int{16, 16, 16, 2}},
		{"empty", 0, 16, []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := pattern(tt.size)
			cw := &countingWriter{}
			n, err := NewWriterSize(cw, tt.chunk).Write(data)
			if err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if n != tt.size {
				t.Errorf("expected %d bytes written, got %d", tt.size, n)
			}
			if !equalInts(cw.calls, tt.wantCalls) {
				t.Errorf("expected calls %v, got %v", tt.wantCalls, cw.calls)
			}
			if !bytes.Equal(cw.buf.Bytes(), data) {
				t.Errorf("written bytes differ from input")
			}
		})
	}
}

func TestReadChunking(t *testing.T) {
	t.Run("small read is a single call", func(t *testing.T) {
		data := pattern(12)
		cr := &countingReader{r: bytes.NewReader(data)}
		buf := make([]byte, 12)
		n, err := NewReaderSize(cr, 16).Read(buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if n != 12 || len(cr.calls) != 1 {
			t.Errorf("expected one call of 12 bytes, got n=%d calls=%v", n, cr.calls)
		}
		if !bytes.Equal(buf, data) {
			t.Errorf("read bytes differ from source")
		}
	})

	t.Run("large read is split", func(t *testing.T) {
		data := pattern(100)
		cr := &countingReader{r: bytes.NewReader(data)}
		buf := make([]byte, 100)
		n, err := NewReaderSize(cr, 30).Read(buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if n != 100 {
			t.Errorf("expected 100 bytes, got %d", n)
		}
		for _, c := range cr.calls {
			if c > 30 {
				t.Errorf("underlying read of %d bytes exceeds chunk limit", c)
			}
		}
		if !bytes.Equal(buf, data) {
			t.Errorf("read bytes differ from source")
		}
	})

	t.Run("short source reports EOF with count", func(t *testing.T) {
		data := pattern(40)
		buf := make([]byte, 100)
		n, err := NewReaderSize(bytes.NewReader(data), 16).Read(buf)
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
		if n != 40 {
			t.Errorf("expected 40 bytes serviced, got %d", n)
		}
	})
}

func TestWriteErrorPropagates(t *testing.T) {
	boom := errors.New("disk full")
	fw := &failingWriter{after: 2, err: boom}
	n, err := NewWriterSize(fw, 4).Write(pattern(20))
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	if n != 8 {
		t.Errorf("expected 8 bytes reported before failure, got %d", n)
	}
	if fw.calls != 3 {
		t.Errorf("expected no retry after failure, got %d calls", fw.calls)
	}
}

func TestChunkedRoundTrip(t *testing.T) {
	for _, k := range []int{0, 1, 100} {
		data := pattern(64 + k)
		var buf bytes.Buffer
		if err := WriteAll(NewWriterSize(&buf, 64), data); err != nil {
			t.Fatalf("k=%d: write failed: %v", k, err)
		}
		got, err := ReadFull(NewReaderSize(&buf, 64), int64(len(data)))
		if err != nil {
			t.Fatalf("k=%d: read failed: %v", k, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("k=%d: round trip mismatch", k)
		}
	}
}

func TestFileForwardsOtherMethods(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	f, err := Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if f.Name() != path {
		t.Errorf("expected Name %q, got %q", path, f.Name())
	}
	if err := WriteAll(f, pattern(33)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	rf, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer rf.Close()
	info, err := rf.Stat()
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	got, err := ReadFull(rf, info.Size())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, pattern(33)) {
		t.Errorf("file contents differ")
	}
}

// TestHugeRoundTrip pushes a buffer past the 2 GiB boundary through a real
// file. It needs ~4.5 GiB of memory and disk, so it only runs on request.
func TestHugeRoundTrip(t *testing.T) {
	if testing.Short() || os.Getenv("LARGEIO_HUGE") == "" {
		t.Skip("set LARGEIO_HUGE=1 to run the >2GiB round trip")
	}

	const k = 100
	data := make([]byte, MaxChunk+1+k)
	for i := 0; i < len(data); i += 4096 {
		data[i] = byte(i >> 12)
	}
	data[len(data)-1] = 0xAB

	path := filepath.Join(t.TempDir(), "huge.bin")
	f, err := Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := WriteAll(f, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	rf, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer rf.Close()
	got, err := ReadFull(rf, int64(len(data)))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("huge round trip mismatch")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
