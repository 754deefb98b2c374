// Package largeio wraps byte streams so that single reads and writes larger
// than MaxChunk bytes are serviced as a sequence of bounded calls.
//
// Some platforms reject (or silently truncate) a single read(2)/write(2)
// larger than 2 GiB. Network checkpoints easily exceed that size, so every
// checkpoint file goes through this package.
package largeio

import (
	"fmt"
	"io"
	"os"
)

// MaxChunk is the largest transfer handed to the underlying stream in one call
const MaxChunk = 1<<31 - 1

// Reader splits large reads into bounded sub-reads
type Reader struct {
	r     io.Reader
	chunk int
}

// NewReader wraps r using the default MaxChunk limit
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, chunk: MaxChunk}
}

// NewReaderSize wraps r with an explicit chunk limit
func NewReaderSize(r io.Reader, chunk int) *Reader {
	if chunk <= 0 {
		chunk = MaxChunk
	}
	return &Reader{r: r, chunk: chunk}
}

// Read fills p. Buffers no larger than the chunk limit are passed to the
// underlying reader in a single call, so short reads are reported as-is.
func (cr *Reader) Read(p []byte) (int, error) {
	return readChunked(cr.r, p, cr.chunk)
}

// Writer splits large writes into bounded sub-writes
type Writer struct {
	w     io.Writer
	chunk int
}

// NewWriter wraps w using the default MaxChunk limit
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, chunk: MaxChunk}
}

// NewWriterSize wraps w with an explicit chunk limit
func NewWriterSize(w io.Writer, chunk int) *Writer {
	if chunk <= 0 {
		chunk = MaxChunk
	}
	return &Writer{w: w, chunk: chunk}
}

// Write consumes p in bounded slices until it is fully written or the
// underlying writer fails
func (cw *Writer) Write(p []byte) (int, error) {
	return writeChunked(cw.w, p, cw.chunk)
}

// File is an *os.File whose Read and Write are chunked. Every other method
// is the embedded file's own.
type File struct {
	*os.File
	chunk int
}

// Open opens path for reading
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{File: f, chunk: MaxChunk}, nil
}

// Create creates or truncates path for writing
func Create(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &File{File: f, chunk: MaxChunk}, nil
}

// Wrap adapts an already opened file
func Wrap(f *os.File) *File {
	return &File{File: f, chunk: MaxChunk}
}

// Read reads into p in bounded chunks
func (f *File) Read(p []byte) (int, error) {
	return readChunked(f.File, p, f.chunk)
}

// Write writes p in bounded chunks
func (f *File) Write(p []byte) (int, error) {
	return writeChunked(f.File, p, f.chunk)
}

// ReadFull reads exactly n bytes from r through a chunking reader
func ReadFull(r io.Reader, n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read size %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(asReader(r), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteAll writes buf to w through a chunking writer
func WriteAll(w io.Writer, buf []byte) error {
	n, err := asWriter(w).Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

func asReader(r io.Reader) io.Reader {
	switch r.(type) {
	case *Reader, *File:
		return r
	}
	return NewReader(r)
}

func asWriter(w io.Writer) io.Writer {
	switch w.(type) {
	case *Writer, *File:
		return w
	}
	return NewWriter(w)
}

func readChunked(r io.Reader, p []byte, chunk int) (int, error) {
	if len(p) <= chunk {
		return r.Read(p)
	}

	idx := 0
	for idx < len(p) {
		end := idx + chunk
		if end > len(p) {
			end = len(p)
		}
		n, err := r.Read(p[idx:end])
		idx += n
		if err != nil {
			return idx, err
		}
		if n == 0 {
			return idx, io.ErrNoProgress
		}
	}
	return idx, nil
}

func writeChunked(w io.Writer, p []byte, chunk int) (int, error) {
	if len(p) <= chunk {
		return w.Write(p)
	}

	idx := 0
	for idx < len(p) {
		end := idx + chunk
		if end > len(p) {
			end = len(p)
		}
		want := end - idx
		n, err := w.Write(p[idx:end])
		idx += n
		if err != nil {
			return idx, err
		}
		if n < want {
			return idx, io.ErrShortWrite
		}
	}
	return idx, nil
}
