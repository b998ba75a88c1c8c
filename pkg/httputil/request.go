package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
)

const (
	domain = "http"

	// maxBodyBytes caps every JSON request body
	maxBodyBytes = 1 << 20
)

// ParseJSON decodes exactly one JSON document from the request body into dest.
// Unknown fields, trailing data and oversized bodies are Invalid.
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return apperr.Invalid(domain, "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid(domain, "request body is required")
		}
		return apperr.Invalid(domain, "invalid JSON: "+err.Error())
	}
	if dec.More() {
		return apperr.Invalid(domain, "invalid JSON: unexpected data after the document")
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes a 400 on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteAppError(w, err)
		return false
	}
	return true
}

// ParsePathID extracts an entity id from the route. Ids are UUIDs; anything else
// cannot name a stored row and is reported as NotFound.
func ParsePathID(r *http.Request, key string) (string, error) {
	raw := mux.Vars(r)[key]
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apperr.NotFound(domain, key, raw)
	}
	return id.String(), nil
}

// ParsePathIDOrError is ParsePathID writing the error response itself
func ParsePathIDOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	id, err := ParsePathID(r, key)
	if err != nil {
		WriteAppError(w, err)
		return "", false
	}
	return id, true
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := strings.TrimSpace(r.URL.Query().Get(key))
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, apperr.Invalid(domain, "query parameter "+key+" must be an integer")
	}
	return val, nil
}

// ParseQueryString extracts a trimmed string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return defaultVal
	}
	return val
}
