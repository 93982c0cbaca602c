package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// fingerprintPayload is the canonical identity of a task execution.
// encoding/json writes map keys in sorted order, so marshalling this
// struct is deterministic for identical inputs.
type fingerprintPayload struct {
	Op     string                 `json:"op"`
	Params map[string]interface{} `json:"params"`
	Inputs map[string]string      `json:"inputs"` // input port -> artifact ID
}

// Fingerprint derives the cache identity of a task execution from the
// operation identifier, the fully resolved parameters and the content
// identities of its input artifacts. Secret references contribute their
// name, never their value.
func Fingerprint(op string, params map[string]interface{}, inputs map[string]string) string {
	data, err := json.Marshal(fingerprintPayload{Op: op, Params: params, Inputs: inputs})
	if err != nil {
		// Parameters come from YAML and artifact values from JSON;
		// both are marshallable. A failure here is a programming error.
		panic("cache: fingerprint payload not serializable: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashValue computes the content identity of a raw artifact value.
func HashValue(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic("cache: artifact value not serializable: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
