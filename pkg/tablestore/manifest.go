package tablestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/eunmann/shopsight/pkg/model"
	"github.com/goccy/go-json"
)

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

const manifestFile = "manifest.json"

// Manifest describes one table generation.
type Manifest struct {
	Version    int                 `json:"version"`
	Generation string              `json:"generation"`
	RunID      string              `json:"run_id,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	Provenance model.Provenance    `json:"provenance"`
	Note       string              `json:"note,omitempty"`
	Products   int                 `json:"products"`
	Sales      int                 `json:"sales"`
	FirstDate  *model.Date         `json:"first_date,omitempty"`
	LastDate   *model.Date         `json:"last_date,omitempty"`
	Files      map[string]FileInfo `json:"files"`
}

// FileInfo describes one table file.
type FileInfo struct {
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"` // SHA-256 hex
}

func writeManifest(dir string, m *Manifest) error {
	m.Files = make(map[string]FileInfo)
	for _, name := range []string{productsFile, salesFile} {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", name, err)
		}
		sum, err := checksumFile(path)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", name, err)
		}
		m.Files[name] = FileInfo{Size: info.Size(), Checksum: sum}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFileSync(filepath.Join(dir, manifestFile), data)
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("manifest version %d, want %d", m.Version, ManifestVersion)
	}
	return &m, nil
}

// verifyManifest checks every listed file against its size and checksum.
func verifyManifest(dir string, m *Manifest) error {
	for name, want := range m.Files {
		path := filepath.Join(dir, name)
		stat, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("file %s: %w", name, err)
		}
		if stat.Size() != want.Size {
			return fmt.Errorf("file %s: size mismatch (got %d, want %d)", name, stat.Size(), want.Size)
		}
		sum, err := checksumFile(path)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", name, err)
		}
		if sum != want.Checksum {
			return fmt.Errorf("file %s: checksum mismatch", name)
		}
	}
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
