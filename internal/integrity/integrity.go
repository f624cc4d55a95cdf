// Package integrity computes and re-verifies artifact digests.
//
// Files are streamed through SHA-256 in fixed-size chunks so arbitrarily
// large artifacts never have to fit in memory.
package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// Algorithm is the only digest algorithm produced by this package.
	Algorithm = "sha256"

	// DefaultChunkSize is the read size used by Compute.
	DefaultChunkSize = 8192
)

var (
	// ErrUnreadable indicates the artifact could not be opened or read.
	ErrUnreadable = errors.New("artifact unreadable")

	// ErrCopyMissing indicates the packaged copy does not exist, so no
	// recomputation was attempted.
	ErrCopyMissing = errors.New("packaged copy missing, hash not recomputed")
)

// ArtifactHash is a hex-encoded digest and the algorithm that produced it.
type ArtifactHash struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// String renders the hash as "sha256:<hex>".
func (h ArtifactHash) String() string {
	return h.Algorithm + ":" + h.Value
}

// Equal reports whether both the algorithm and the hex value match.
func (h ArtifactHash) Equal(other ArtifactHash) bool {
	return h.Algorithm == other.Algorithm && h.Value == other.Value
}

// Compute hashes the file at path using DefaultChunkSize reads.
func Compute(ctx context.Context, path string) (ArtifactHash, error) {
	return ComputeChunked(ctx, path, DefaultChunkSize)
}

// ComputeChunked hashes the file at path reading chunkSize bytes at a time.
// The digest does not depend on chunkSize.
func ComputeChunked(ctx context.Context, path string, chunkSize int) (ArtifactHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return ArtifactHash{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	h, err := ComputeReader(ctx, f, chunkSize)
	if err != nil {
		return ArtifactHash{}, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}
	return h, nil
}

// ComputeReader folds r into a running SHA-256 digest, one chunk at a time.
// The context is checked between chunks.
func ComputeReader(ctx context.Context, r io.Reader, chunkSize int) (ArtifactHash, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	digest := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return ArtifactHash{}, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ArtifactHash{}, err
		}
	}

	return ArtifactHash{
		Algorithm: Algorithm,
		Value:     hex.EncodeToString(digest.Sum(nil)),
	}, nil
}
