package library

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmpty is returned when the library directory holds no playable tracks.
var ErrEmpty = errors.New("library is empty")

var playableExtensions = map[string]struct{}{
	".mp3":  {},
	".m4a":  {},
	".ogg":  {},
	".opus": {},
	".flac": {},
	".wav":  {},
}

// Library is the local fallback collection played when external extraction
// is unavailable.
type Library struct {
	root string
}

func New(root string) *Library {
	return &Library{root: root}
}

// RandomTrack returns the filename of a random playable track relative to
// the library root. The directory is re-listed on every call so dropping
// files in takes effect without a restart.
func (l *Library) RandomTrack() (string, error) {
	tracks, err := l.list()
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "", ErrEmpty
	}
	return tracks[rand.Intn(len(tracks))], nil
}

// Resolve maps a track filename to its absolute path, refusing anything
// outside the library root.
func (l *Library) Resolve(name string) (string, error) {
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." {
		return "", fmt.Errorf("invalid track name %q", name)
	}
	if !playable(base) {
		return "", fmt.Errorf("not a playable track: %q", name)
	}
	path := filepath.Join(l.root, base)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

func (l *Library) list() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEmpty
		}
		return nil, err
	}
	tracks := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if playable(entry.Name()) {
			tracks = append(tracks, entry.Name())
		}
	}
	return tracks, nil
}

func playable(name string) bool {
	_, ok := playableExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
