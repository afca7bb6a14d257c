package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/unimerch/api/internal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var errBodyTooLarge = errors.New("request body too large")

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer func() {
		_ = r.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

func parseTimeParam(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// parsePagination clamps page_size to [1, 100] with a default of 20.
func parsePagination(query map[string][]string) (services.Pagination, error) {
	pager := services.Pagination{PageSize: defaultPageSize}
	if values, ok := query["page_token"]; ok && len(values) > 0 {
		pager.PageToken = strings.TrimSpace(values[0])
	}
	values, ok := query["page_size"]
	if !ok || len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return pager, nil
	}
	size, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil {
		return services.Pagination{}, errors.New("page_size must be an integer")
	}
	switch {
	case size <= 0:
		pager.PageSize = defaultPageSize
	case size > maxPageSize:
		pager.PageSize = maxPageSize
	default:
		pager.PageSize = size
	}
	return pager, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
