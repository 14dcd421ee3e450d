// Package fingerprint computes content fingerprints for tamper evidence.
//
// The fingerprint is always taken over the original uploaded bytes, never
// the stamped output, so it stays valid as proof of non-tampering no matter
// what the stamping step embeds later.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Sum streams r through SHA-256 and returns the lowercase hex digest.
// Memory use is constant in input size. Read errors propagate; a partial
// read never yields a digest.
func Sum(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("fingerprint read: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Tee returns a reader mirroring r into a SHA-256 hasher and a function
// yielding the hex digest. The digest function is only meaningful after the
// reader has been fully consumed. Lets callers that already stream the
// bytes somewhere (staging writes) fingerprint in the same pass.
func Tee(r io.Reader) (io.Reader, func() string) {
	hasher := sha256.New()
	return io.TeeReader(r, hasher), func() string {
		return hex.EncodeToString(hasher.Sum(nil))
	}
}

// SumFile fingerprints a file on disk.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint open %s: %w", path, err)
	}
	defer f.Close()
	return Sum(f)
}
