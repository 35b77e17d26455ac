package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "detections.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexRoundTrip(t *testing.T) {
	idx := openTestIndex(t)
	ts := time.Unix(1700000000, 0)

	if err := idx.Insert("a1", ts, `[{"x_min":1,"y_min":2,"x_max":3,"y_max":4}]`, "1700000000.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert("a2", ts.Add(time.Minute), "[]", "1700000060.jpg"); err != nil {
		t.Fatal(err)
	}

	n, err := idx.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	recent, err := idx.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != "a2" {
		t.Fatalf("recent = %+v, want newest detection a2", recent)
	}
	if recent[0].Timestamp.Unix() != ts.Add(time.Minute).Unix() {
		t.Fatalf("timestamp = %v, want %v", recent[0].Timestamp, ts.Add(time.Minute))
	}
	if recent[0].Uploaded {
		t.Fatal("fresh detection marked as uploaded")
	}
}

func TestIndexMarkUploadedMatchesByBase(t *testing.T) {
	idx := openTestIndex(t)
	ts := time.Unix(1700000000, 0)

	if err := idx.Insert("a1", ts, "[]", "1700000000.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := idx.MarkUploaded("/data/spaia/1700000000.jpg"); err != nil {
		t.Fatal(err)
	}

	recent, err := idx.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || !recent[0].Uploaded {
		t.Fatal("upload flag not set after MarkUploaded")
	}
}
