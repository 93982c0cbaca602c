package models

// Artifact is a reference to a piece of data produced by a task or
// supplied as a top-level run input. ID is a content-derived identity
// used in cache fingerprints; Value is the payload itself for the
// embedded engine (JSON-serializable).
type Artifact struct {
	ID    string      `json:"id"`
	Value interface{} `json:"value"`
}

// ArtifactSet maps output port names to the artifacts a task produced.
type ArtifactSet map[string]Artifact
