package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ricochet2200/go-disk-usage/du"
	"github.com/sirupsen/logrus"
)

// AppDir is the directory under the mount point that holds all persisted
// output. Downstream tooling depends on this layout.
const AppDir = "spaia"

// DiskStore implements Store on a mounted filesystem. Before every write it
// checks free space and purges the oldest captures when the card runs low.
type DiskStore struct {
	mount    string
	dir      string
	lowWater uint64
	log      *logrus.Entry
}

// NewDiskStore prepares <mount>/spaia/ and returns a store for it. lowWater
// is the free-byte floor below which old captures are purged; 0 disables
// purging.
func NewDiskStore(mount string, lowWater uint64) (*DiskStore, error) {
	dir := filepath.Join(mount, AppDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &DiskStore{
		mount:    mount,
		dir:      dir,
		lowWater: lowWater,
		log:      logrus.WithField("component", "storage"),
	}, nil
}

// Dir returns the capture directory path.
func (s *DiskStore) Dir() string {
	return s.dir
}

// WriteFile persists data at path, failing on short writes and removing the
// partial file when that happens.
func (s *DiskStore) WriteFile(path string, data []byte) error {
	s.ensureSpace()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", path, err)
	}
	n, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// AppendFile appends data to path, creating the file when missing.
func (s *DiskStore) AppendFile(path string, data []byte) error {
	s.ensureSpace()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", path, err)
	}
	n, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("storage: append %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names an existing file.
func (s *DiskStore) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListDir returns the full paths of the regular files in path.
func (s *DiskStore) ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	return files, nil
}

// Remove deletes the file at path.
func (s *DiskStore) Remove(path string) error {
	return os.Remove(path)
}

// ensureSpace purges the oldest files in the capture directory until free
// space is back above the low-water mark. Best effort.
func (s *DiskStore) ensureSpace() {
	if s.lowWater == 0 {
		return
	}
	usage := du.NewDiskUsage(s.mount)
	if usage.Available() >= s.lowWater {
		return
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.WithError(err).Warn("purge scan failed")
		return
	}
	type aged struct {
		path string
		mod  int64
	}
	var files []aged
	for _, e := range entries {
		// Only captures are expendable. The index database and the
		// daily logs survive a purge.
		if !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, aged{filepath.Join(s.dir, e.Name()), info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })

	for _, f := range files {
		if du.NewDiskUsage(s.mount).Available() >= s.lowWater {
			return
		}
		if err := os.Remove(f.path); err != nil {
			s.log.WithError(err).Warnf("purge of %s failed", f.path)
			continue
		}
		s.log.Warnf("low disk space, purged %s", f.path)
	}
}
