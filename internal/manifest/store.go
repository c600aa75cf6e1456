package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

// FileName is the manifest file inside each network directory.
const FileName = "deployments.json"

var networkPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidNetwork reports whether network can be used as a location key.
func ValidNetwork(network string) bool {
	return networkPattern.MatchString(network) && network != "." && network != ".."
}

// FileStore keeps one manifest per network at <Dir>/<network>/deployments.json.
//
// There is no locking. Two runs against the same network race on the final
// write and the last one wins.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the manifest location for network.
func (s *FileStore) Path(network string) (string, error) {
	if !ValidNetwork(network) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, network)
	}
	return filepath.Join(s.Dir, network, FileName), nil
}

// Raw returns the manifest file bytes as stored.
func (s *FileStore) Raw(network string) ([]byte, error) {
	path, err := s.Path(network)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return data, nil
}

// Load reads and parses the manifest for network.
func (s *FileStore) Load(network string) (Manifest, error) {
	data, err := s.Raw(network)
	if err != nil {
		return Manifest{}, err
	}
	m, err := Parse(data)
	if err != nil {
		var ce *CorruptError
		if errors.As(err, &ce) {
			ce.Path, _ = s.Path(network)
		}
		return Manifest{}, err
	}
	return m, nil
}

// Save overwrites the manifest for network. The file is written to a
// temporary sibling, synced, then renamed into place.
func (s *FileStore) Save(network string, m Manifest) error {
	path, err := s.Path(network)
	if err != nil {
		return err
	}
	data, err := Encode(m)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".deployments-*.json")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // No-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}
