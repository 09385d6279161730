package handlers

import (
	"net/http"
	"strconv"
	"strings"
)

// getParam returns a path or query parameter value regardless of whether
// the router stores it with a leading colon or not.
func getParam(r *http.Request, name string) string {
	if r == nil {
		return ""
	}
	if val := r.URL.Query().Get(":" + name); val != "" {
		return val
	}
	if val := r.URL.Query().Get(name); val != "" {
		return val
	}
	return r.PathValue(name)
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(getParam(r, name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parsePaging(r *http.Request) (int, int, bool) {
	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			return 0, 0, false
		}
		limit = min(l, 100)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		o, err := strconv.Atoi(v)
		if err != nil || o < 0 {
			return 0, 0, false
		}
		offset = o
	}
	return limit, offset, true
}
