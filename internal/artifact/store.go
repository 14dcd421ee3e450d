// Package artifact resolves the registry's logical artifact references to
// files on disk. Two areas exist under the data directory: staging/ holds
// raw uploads awaiting review or stamping, certified/ holds stamped
// outputs. Every lookup is a direct id→ref mapping; nothing ever scans a
// directory to find a file.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	id "verifyd/pkg/domain"

	"verifyd/internal/fingerprint"
)

const (
	stagingArea   = "staging"
	certifiedArea = "certified"
)

// Store manages physical artifact files under a data directory.
type Store struct {
	dataDir string
}

// NewStore creates the staging and certified areas if they do not exist.
func NewStore(dataDir string) (*Store, error) {
	for _, area := range []string{stagingArea, certifiedArea} {
		if err := os.MkdirAll(filepath.Join(dataDir, area), 0o750); err != nil {
			return nil, fmt.Errorf("create %s area: %w", area, err)
		}
	}
	return &Store{dataDir: dataDir}, nil
}

// StageResult describes a staged upload.
type StageResult struct {
	// Ref is the logical reference to the staged file.
	Ref id.ArtifactRef
	// Size is the number of bytes written.
	Size int64
	// Fingerprint is the SHA-256 hex digest of the staged bytes, computed
	// while streaming so the file is read exactly once.
	Fingerprint string
}

// Stage streams an upload to the staging area keyed by certificate id.
//
// Write discipline: temp file → streamed write with fingerprint tee →
// fsync → atomic rename. A failed or cancelled write leaves nothing behind:
// the temp file is removed on every error path, including a client
// disconnect surfacing as a read error from r.
func (s *Store) Stage(certID id.CertificateID, ext string, r io.Reader) (*StageResult, error) {
	ref := s.StagedRef(certID, ext)
	fullPath := s.Path(ref)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create staging temp file: %w", err)
	}

	tee, digest := fingerprint.Tee(r)
	size, err := io.Copy(f, tee)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("write staged upload: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("fsync staged upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("close staged upload: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("finalize staged upload: %w", err)
	}

	return &StageResult{Ref: ref, Size: size, Fingerprint: digest()}, nil
}

// StagedRef returns the logical reference a staged upload will have.
func (s *Store) StagedRef(certID id.CertificateID, ext string) id.ArtifactRef {
	return id.ArtifactRef(stagingArea + "/" + certID.String() + sanitizeExt(ext))
}

// CertifiedRef returns the logical reference for a certificate's stamped
// output. Stamped artifacts are always MP4, matching the stamping profile.
func (s *Store) CertifiedRef(certID id.CertificateID) id.ArtifactRef {
	return id.ArtifactRef(certifiedArea + "/" + certID.String() + ".mp4")
}

// Path resolves a logical reference to an absolute path.
func (s *Store) Path(ref id.ArtifactRef) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(ref.String()))
}

// Open opens the referenced artifact for reading. The caller must close it.
func (s *Store) Open(ref id.ArtifactRef) (*os.File, error) {
	f, err := os.Open(s.Path(ref))
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", ref, err)
	}
	return f, nil
}

// Exists reports whether the referenced artifact is on disk.
func (s *Store) Exists(ref id.ArtifactRef) bool {
	_, err := os.Stat(s.Path(ref))
	return err == nil
}

// Remove deletes the referenced artifact. Removing a missing artifact is
// not an error; rollback paths call this unconditionally.
func (s *Store) Remove(ref id.ArtifactRef) error {
	err := os.Remove(s.Path(ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact %s: %w", ref, err)
	}
	return nil
}

// sanitizeExt keeps only a safe, lowercase extension for on-disk naming.
func sanitizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" || !strings.HasPrefix(ext, ".") {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
