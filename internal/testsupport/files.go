package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteSegment fills the target path with a WebM-framed payload of the
// requested size. A size <= 4 still produces the four EBML magic bytes.
func WriteSegment(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.Write(SegmentHeader()); err != nil {
		t.Fatalf("write header %s: %v", path, err)
	}
	remaining := size - 4

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// SegmentHeader returns the EBML magic that opens a WebM container.
func SegmentHeader() []byte {
	return []byte{0x1A, 0x45, 0xDF, 0xA3}
}

// SegmentPayload builds an in-memory WebM-framed payload of the given size.
func SegmentPayload(size int) []byte {
	payload := make([]byte, size)
	copy(payload, SegmentHeader())
	for i := 4; i < size; i++ {
		payload[i] = 0x42
	}
	return payload
}
