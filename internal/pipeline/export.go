package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/hash/sha256"
)

// ManifestName is the object written after the artifacts of a run.
const ManifestName = "manifest.json"

// ObjectStore receives the run snapshot.
type ObjectStore interface {
	PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error)
}

// Artifact is a durable file copied at the end of a run.
type Artifact struct {
	Name        string
	Path        string
	ContentType string
}

// Manifest describes one exported snapshot.
type Manifest struct {
	RunID      string          `json:"run_id"`
	ExportedAt time.Time       `json:"exported_at"`
	Objects    []ManifestEntry `json:"objects"`
}

// ManifestEntry is one uploaded artifact.
type ManifestEntry struct {
	Name   string `json:"name"`
	URI    string `json:"uri"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Export uploads each artifact to runID/<name>, then a manifest with the size
// and digest of every upload. Missing files are skipped. It returns the URIs
// of the uploaded objects, manifest last.
func Export(ctx context.Context, store ObjectStore, runID string, artifacts []Artifact) ([]string, error) {
	if store == nil {
		return nil, nil
	}
	hasher := sha256.New()
	manifest := Manifest{RunID: runID, ExportedAt: time.Now().UTC()}
	var uris []string
	for _, a := range artifacts {
		entry, err := exportOne(ctx, store, hasher, path.Join(runID, a.Name), a)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return uris, err
		}
		manifest.Objects = append(manifest.Objects, entry)
		uris = append(uris, entry.URI)
	}
	if len(manifest.Objects) == 0 {
		return uris, nil
	}
	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return uris, fmt.Errorf("encode manifest: %w", err)
	}
	uri, err := store.PutObject(ctx, path.Join(runID, ManifestName), "application/json", bytes.NewReader(body))
	if err != nil {
		return uris, fmt.Errorf("export manifest: %w", err)
	}
	return append(uris, uri), nil
}

func exportOne(ctx context.Context, store ObjectStore, hasher *sha256.Hasher, name string, a Artifact) (ManifestEntry, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return ManifestEntry{}, fmt.Errorf("open %s: %w", a.Path, err)
	}
	defer f.Close() //nolint:errcheck // read-only
	digest := hasher.Reader(f)
	uri, err := store.PutObject(ctx, name, a.ContentType, digest)
	if err != nil {
		return ManifestEntry{}, fmt.Errorf("export %s: %w", a.Name, err)
	}
	sum, n := digest.Sum()
	return ManifestEntry{Name: a.Name, URI: uri, Bytes: n, SHA256: sum}, nil
}
