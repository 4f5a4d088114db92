package wheel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// digestChunkSize is the read block size for streaming digest computation.
const digestChunkSize = 4096

// RekorSearchBaseURL is the public transparency-log search frontend.
const RekorSearchBaseURL = "https://search.sigstore.dev/"

// Digest holds a wheel's content hash and the derived transparency-log
// search URL.
type Digest struct {
	SHA256   string `json:"sha256"`
	RekorURL string `json:"rekor_url"`
}

// ComputeDigest streams the file at path through SHA-256 in fixed-size
// chunks and returns the hex digest. The file is never loaded into memory
// at once.
func ComputeDigest(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Digest{}, fmt.Errorf("%w: %s", ErrWheelNotFound, path)
		}
		return Digest{}, fmt.Errorf("failed to open wheel %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, digestChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, fmt.Errorf("failed to read wheel %s: %w", path, err)
		}
	}

	sum := hex.EncodeToString(h.Sum(nil))
	return Digest{
		SHA256:   sum,
		RekorURL: fmt.Sprintf("%s?hash=%s", RekorSearchBaseURL, sum),
	}, nil
}
