package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// maxBodyBytes bounds request bodies; session payloads are small.
const maxBodyBytes = 1 << 20

// isNull reports whether a field carries the JSON null literal. A null value
// is never accepted where a string is required, and a null selector on
// DELETE counts as absent.
func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// presentNonNull reports whether the field exists with a non-null value.
func presentNonNull(fields map[string]json.RawMessage, name string) bool {
	raw, ok := fields[name]
	return ok && !isNull(raw)
}

func fieldError(w http.ResponseWriter, field string) {
	badRequest(w, fmt.Sprintf("Field name '%s' is invalid in JSON input", field))
}

// decodeBody reads the request body into a field map. A malformed or empty
// body is a 400.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, bool) {
	fields := map[string]json.RawMessage{}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&fields); err != nil {
		badRequest(w, msgInvalidJSON)
		return nil, false
	}
	return fields, true
}

// requireString extracts a required string field, writing a 400 naming the
// field when absent or wrong-typed.
func requireString(w http.ResponseWriter, fields map[string]json.RawMessage, name string) (string, bool) {
	raw, present := fields[name]
	if !present || isNull(raw) {
		fieldError(w, name)
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		fieldError(w, name)
		return "", false
	}
	return s, true
}

// requireObject extracts a required JSON object field, returned opaque.
func requireObject(w http.ResponseWriter, fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, present := fields[name]
	if !present {
		fieldError(w, name)
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		fieldError(w, name)
		return nil, false
	}
	return raw, true
}

// requireStringArray extracts a required array of non-null strings.
func requireStringArray(w http.ResponseWriter, fields map[string]json.RawMessage, name string) ([]string, bool) {
	raw, present := fields[name]
	if !present || isNull(raw) {
		fieldError(w, name)
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || elems == nil {
		fieldError(w, name)
		return nil, false
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		if isNull(e) {
			fieldError(w, name)
			return nil, false
		}
		var s string
		if err := json.Unmarshal(e, &s); err != nil {
			fieldError(w, name)
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
