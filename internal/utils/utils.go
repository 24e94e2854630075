package utils

import (
	"crypto/tls"
	"net/http"
	"strconv"
)

// StartAndLimitFromRequest reads the start and limit query parameters of a
// listing. Invalid values fall back to 0, which means from the beginning and
// no limit.
func StartAndLimitFromRequest(r *http.Request) (int, int) {
	strStart := r.URL.Query().Get("start")
	strLimit := r.URL.Query().Get("limit")
	start := 0
	limit := 0
	var err error
	if strStart != "" {
		start, err = strconv.Atoi(strStart)
		if err != nil || start < 0 {
			start = 0
		}
	}
	if strLimit != "" {
		limit, err = strconv.Atoi(strLimit)
		if err != nil || limit < 0 {
			limit = 0
		}
	}
	return start, limit
}

func TLSConfig(crtPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(crtPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
