package model

// ManifestSchemaVersion is the current artifact manifest schema version.
const ManifestSchemaVersion = "1.0"

// ManifestFilename is the well-known manifest path inside an artifact.
const ManifestFilename = "manifest.json"

// ManifestOutput records one packaged file and its digest.
type ManifestOutput struct {
	Filename   string `json:"filename"`
	HashSHA256 string `json:"hash_sha256"`
}

// ArtifactManifest describes an artifact's contents and expected hashes so
// that a third party can re-derive every digest independently.
type ArtifactManifest struct {
	SchemaVersion       string           `json:"schema_version"`
	AnalysisAgent       string           `json:"analysis_agent"`
	TimestampUTC        string           `json:"timestamp_utc"`
	InputDataHashSHA256 string           `json:"input_data_hash_sha256"`
	Outputs             []ManifestOutput `json:"outputs"`
}

// PackageResponse reports a packaged, stored artifact.
type PackageResponse struct {
	ContentAddress string            `json:"contentAddress"`
	URL            string            `json:"url"`
	Manifest       *ArtifactManifest `json:"manifest"`
}

// VerificationReport is the outcome of checking a candidate file against a
// manifest's recorded input hash. A mismatch is a legitimate result, not a
// fault.
type VerificationReport struct {
	Match          bool   `json:"match"`
	ExpectedHash   string `json:"expectedHash"`
	CalculatedHash string `json:"calculatedHash"`
}
