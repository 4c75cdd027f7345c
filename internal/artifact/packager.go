// Package artifact builds and verifies self-describing result containers.
// An artifact is a zip holding manifest.json plus one file per output; the
// manifest records a digest for every file so any third party can unpack
// the container and re-derive each hash independently.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/labledger/api/internal/hashing"
	"github.com/labledger/api/internal/model"
)

var (
	// ErrNoPayloads is returned when packaging is attempted with no outputs.
	ErrNoPayloads = errors.New("artifact: no payloads to package")

	// ErrMissingManifest is returned when a container has no manifest.json.
	ErrMissingManifest = errors.New("artifact: container missing manifest.json")

	// ErrUnknownAgent is returned when a manifest names an agent with no
	// registered hashing mode.
	ErrUnknownAgent = errors.New("artifact: unknown analysis agent")
)

// Payload is one named output to package, either text or binary.
type Payload struct {
	Filename string
	Kind     model.PayloadKind
	Text     string
	Bytes    []byte
}

// data returns the literal bytes that are both stored and hashed.
func (p Payload) data() []byte {
	if p.Kind == model.PayloadText {
		return []byte(p.Text)
	}
	return p.Bytes
}

// Package builds a manifest and zip container from a job's outputs. It is a
// pure transform: no network or persistent side effects.
func Package(inputHash, agent string, payloads []Payload) (*model.ArtifactManifest, []byte, error) {
	if len(payloads) == 0 {
		return nil, nil, ErrNoPayloads
	}

	manifest := &model.ArtifactManifest{
		SchemaVersion:       model.ManifestSchemaVersion,
		AnalysisAgent:       agent,
		TimestampUTC:        time.Now().UTC().Format(time.RFC3339),
		InputDataHashSHA256: inputHash,
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, p := range payloads {
		data := p.data()
		sum, err := hashing.SumBytes(data)
		if err != nil {
			return nil, nil, fmt.Errorf("hash %s: %w", p.Filename, err)
		}
		manifest.Outputs = append(manifest.Outputs, model.ManifestOutput{
			Filename:   p.Filename,
			HashSHA256: sum,
		})

		w, err := zw.Create(p.Filename)
		if err != nil {
			return nil, nil, fmt.Errorf("create %s: %w", p.Filename, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, nil, fmt.Errorf("write %s: %w", p.Filename, err)
		}
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal manifest: %w", err)
	}
	w, err := zw.Create(model.ManifestFilename)
	if err != nil {
		return nil, nil, fmt.Errorf("create manifest: %w", err)
	}
	if _, err := w.Write(manifestJSON); err != nil {
		return nil, nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("finalize container: %w", err)
	}

	return manifest, buf.Bytes(), nil
}

// Unpack reads a container back into its manifest and files. Files are
// keyed by their literal archive path; manifest.json is excluded from the
// file map.
func Unpack(container []byte) (*model.ArtifactManifest, map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(container), int64(len(container)))
	if err != nil {
		return nil, nil, fmt.Errorf("open container: %w", err)
	}

	var manifest *model.ArtifactManifest
	files := make(map[string][]byte, len(zr.File))

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", f.Name, err)
		}

		if f.Name == model.ManifestFilename {
			var m model.ArtifactManifest
			if err := json.Unmarshal(data, &m); err != nil {
				return nil, nil, fmt.Errorf("parse manifest: %w", err)
			}
			manifest = &m
			continue
		}
		files[f.Name] = data
	}

	if manifest == nil {
		return nil, nil, ErrMissingManifest
	}
	return manifest, files, nil
}
