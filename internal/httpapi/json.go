package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/holiman/uint256"

	"github.com/stackflow/watchtower/internal/apperr"
)

// readBody enforces the 5 MiB body cap (spec.md §6), grounded on the
// teacher's payments-gateway Server.readBody.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(reader)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "encode-error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, reason, message string) {
	body, _ := json.Marshal(map[string]string{"error": reason, "message": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeAppError renders the taxonomy-tagged error's status/reason (spec.md §7).
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := apperr.As(err); ok {
		writeError(w, r, ae.Status, ae.Reason, ae.Message)
		return
	}
	writeError(w, r, http.StatusInternalServerError, "internal-error", err.Error())
}

// decodeJSON unmarshals body into dst, wrapping parse failures as a
// validation error (400, spec.md §7).
func decodeJSON(body []byte, dst interface{}) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.ValidationWrap("invalid JSON payload", err)
	}
	return nil
}

// parseUint parses an optional decimal uint128 string field; an empty
// string yields nil with no error.
func parseUint(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, apperr.ValidationWrap("invalid integer field", err)
	}
	return v, nil
}

func uintString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}
