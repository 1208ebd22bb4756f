package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDisk_RoundTrip(t *testing.T) {
	d := NewDisk(filepath.Join(t.TempDir(), "catalog"), time.Hour)
	key := Key{Kind: KindAllCars, Store: "dealer.myshopify.com"}
	payload := []byte(`[{"handle":"civic-2020","title":"Honda Civic 1.8 EL ปี 2020"}]`)

	if err := d.Write(key, payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := d.Read(key)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read() = %s, want %s", got, payload)
	}
}

func TestDisk_MissingFile(t *testing.T) {
	d := NewDisk(t.TempDir(), time.Hour)

	_, err := d.Read(Key{Kind: KindHomepage, Store: "s"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Read() error = %v, want ErrCacheMiss", err)
	}
}

func TestDisk_StaleFileIsMiss(t *testing.T) {
	d := NewDisk(t.TempDir(), time.Minute)
	key := Key{Kind: KindAllCars, Store: "s"}

	if err := d.Write(key, []byte(`[]`)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	old := time.Now().Add(-2 * time.Minute)
	if err := os.Chtimes(d.Path(key), old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	if _, err := d.Read(key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Read() error = %v, want ErrCacheMiss", err)
	}
}

func TestDisk_OverwriteAndDelete(t *testing.T) {
	dir := t.TempDir()
	d := NewDisk(dir, time.Hour)
	key := Key{Kind: KindCarSpecs, Store: "s", Handles: []string{"a", "b"}}

	_ = d.Write(key, []byte(`{"a":1}`))
	_ = d.Write(key, []byte(`{"a":2}`))

	got, err := d.Read(key)
	if err != nil || string(got) != `{"a":2}` {
		t.Fatalf("Read() = %s, %v", got, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d files, want 1 (no leftover temp files)", len(entries))
	}

	if err := d.Delete(key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := d.Delete(key); err != nil {
		t.Errorf("Delete() of missing file error = %v", err)
	}
}
