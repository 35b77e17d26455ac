// Package storage holds the persistence collaborators of the camera trap:
// the mounted-filesystem store, the daily CSV detection log and the local
// detection index.
package storage

// Store is the filesystem collaborator contract. The capture directory is
// append-only from the pipeline's perspective; deletion happens only through
// the purge path and the control API.
type Store interface {
	WriteFile(path string, data []byte) error
	AppendFile(path string, data []byte) error
	Exists(path string) bool
	ListDir(path string) ([]string, error)
	Remove(path string) error
}

// Climate is the environmental sensor collaborator. Implementations wrap
// the physical temperature/humidity/pressure bus.
type Climate interface {
	Read() (temperature, humidity, pressure float64, err error)
}
