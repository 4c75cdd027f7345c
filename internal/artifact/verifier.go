package artifact

import (
	"fmt"

	"github.com/labledger/api/internal/hashing"
	"github.com/labledger/api/internal/model"
)

// Verify recomputes the digest of a candidate input file and compares it to
// the manifest's recorded input hash. The hashing mode (text vs binary)
// follows the analysis agent recorded in the manifest, matching how the
// payload was hashed at submission time. A mismatch is reported, never
// returned as an error.
func Verify(manifest *model.ArtifactManifest, candidate []byte) (*model.VerificationReport, error) {
	kind, ok := model.PayloadKindForAgent(manifest.AnalysisAgent)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, manifest.AnalysisAgent)
	}

	var (
		calculated string
		err        error
	)
	switch kind {
	case model.PayloadText:
		calculated, err = hashing.SumText(string(candidate))
	default:
		calculated, err = hashing.SumBytes(candidate)
	}
	if err != nil {
		return nil, fmt.Errorf("hash candidate: %w", err)
	}

	return &model.VerificationReport{
		Match:          calculated == manifest.InputDataHashSHA256,
		ExpectedHash:   manifest.InputDataHashSHA256,
		CalculatedHash: calculated,
	}, nil
}

// VerifyOutput checks one unpacked output file against its manifest entry.
func VerifyOutput(manifest *model.ArtifactManifest, filename string, data []byte) (*model.VerificationReport, error) {
	for _, out := range manifest.Outputs {
		if out.Filename != filename {
			continue
		}
		calculated, err := hashing.SumBytes(data)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", filename, err)
		}
		return &model.VerificationReport{
			Match:          calculated == out.HashSHA256,
			ExpectedHash:   out.HashSHA256,
			CalculatedHash: calculated,
		}, nil
	}
	return nil, fmt.Errorf("artifact: manifest has no output %q", filename)
}
