package api

import (
	"fmt"
	"net/http"
	"strconv"
)

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequestf(fmt.Sprintf("%s must be an integer", name))
	}
	return id, nil
}

// queryInt reads an optional integer parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequestf(fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}

// queryID reads an optional int64 parameter; absent yields nil.
func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, badRequestf(fmt.Sprintf("%s must be an integer", name))
	}
	return &id, nil
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequestf("malformed request body")
	}
	return nil
}
