package gtfs

import (
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// crashClose simulates an abrupt process exit: it tears down the mapping
// and closes the descriptor (which drops the flock) without running the
// normal Close-time recovery and bookkeeping. Used by tests that need to
// hand the same data/log files to a fresh Handle, the way a second process
// would see them after the first crashed.
func crashClose(t *testing.T, h *Handle) {
	t.Helper()
	if h.data != nil {
		if err := unix.Munmap(h.data); err != nil {
			t.Fatalf("munmap: %v", err)
		}
		h.data = nil
	}
	if err := h.file.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	h.store.mu.Lock()
	delete(h.store.handles, h.name)
	h.store.mu.Unlock()
}

func TestOpenFileGrowsAnEmptyFile(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	h, err := st.OpenFile("f", 64)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	info, err := os.Stat(h.dataPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 64 {
		t.Fatalf("size after open = %d, want 64", info.Size())
	}
}

func TestOpenFileRejectsShrink(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	h, err := st.OpenFile("f", 64)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := st.OpenFile("f", 32); err != ErrShrinkRejected {
		t.Fatalf("got %v, want ErrShrinkRejected", err)
	}
}

func TestOpenFileSameLengthIsNoop(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	h, err := st.OpenFile("f", 64)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	h, err = st.OpenFile("f", 64)
	if err != nil {
		t.Fatalf("reopening at the same length should succeed, got %v", err)
	}
	h.Close()
}

func TestOpenFileRejectsLongName(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, WithMaxNameLen(8))
	if err != nil {
		t.Fatal(err)
	}
	name := strings.Repeat("n", 9)
	if _, err := st.OpenFile(name, 8); err != ErrNameTooLong {
		t.Fatalf("got %v, want ErrNameTooLong", err)
	}
}

func TestOpenFileRejectsNegativeLength(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.OpenFile("f", -1); err != ErrRangeInvalid {
		t.Fatalf("got %v, want ErrRangeInvalid", err)
	}
}

func TestReadWriteRangeValidation(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	h, err := st.OpenFile("f", 16)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	cases := []struct {
		offset, length int64
	}{
		{-1, 1},
		{0, -1},
		{10, 10}, // 20 > 16
		{16, 1},  // offset at the boundary, still out of range
	}
	for _, c := range cases {
		if _, err := h.Read(c.offset, c.length); err != ErrRangeInvalid {
			t.Errorf("Read(%d,%d) = %v, want ErrRangeInvalid", c.offset, c.length, err)
		}
	}

	if _, err := h.Write(10, make([]byte, 10)); err != ErrRangeInvalid {
		t.Fatalf("Write past the end should be ErrRangeInvalid, got %v", err)
	}
	if _, err := h.Write(-1, []byte("x")); err != ErrRangeInvalid {
		t.Fatalf("Write at a negative offset should be ErrRangeInvalid, got %v", err)
	}
}

func TestWriteMutatesMappingBeforeSync(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	h, err := st.OpenFile("f", 16)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if _, err := h.Write(0, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	got, err := h.Read(0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("Read after Write (before Sync) = %q, want %q", got, "hello")
	}
}

func TestRemoveRejectedWhileOpen(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	h, err := st.OpenFile("f", 16)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if err := h.Remove(); err != ErrRemoveOpenRejected {
		t.Fatalf("got %v, want ErrRemoveOpenRejected", err)
	}
}

func TestRemoveAfterClose(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	h, err := st.OpenFile("f", 16)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(h.dataPath); !os.IsNotExist(err) {
		t.Fatalf("data file should be gone after Remove")
	}
}

func TestOpenFileBlocksUntilPriorHandleCloses(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	h1, err := st.OpenFile("f", 16)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		h2, err := st.OpenFile("f", 16)
		if err != nil {
			t.Error(err)
			close(done)
			return
		}
		h2.Close()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second OpenFile returned before the first handle closed")
	case <-time.After(50 * time.Millisecond):
	}

	if err := h1.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second OpenFile never unblocked after the first handle closed")
	}
}
