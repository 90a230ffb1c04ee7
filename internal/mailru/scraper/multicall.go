package scraper

import (
	"context"
	"errors"
	"fmt"
	"mailru-backend/internal/mailru/session"
	"strings"
)

// SplitIDs splits a comma joined argument, dropping blanks.
func SplitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Scraper) ignorable(err error) bool {
	for _, target := range s.cfg.Ignorable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Multicall runs call once per id of the comma joined argument key, one at
// a time and in order. Failures matching the ignorable errors skip their
// id, any other failure aborts the batch. When ids were requested but none
// produced a result, empty is returned as an error, or as an error payload
// for sessions that pass errors through. List results are flattened.
func (s *Scraper) Multicall(ctx context.Context, key string, params session.Params, empty error, call handlerFunc) (any, error) {
	raw, _ := params.String(key)
	ids := SplitIDs(raw)

	results := []any{}
	for _, id := range ids {
		p := params.Clone()
		p[key] = id

		res, err := call(ctx, p)
		if err != nil {
			if s.ignorable(err) {
				s.metrics.IncFanOutFailure("ignored")
				s.tel.ReportDebug("skipping", key, id, err)
				continue
			}
			s.metrics.IncFanOutFailure("fatal")
			s.tel.ReportWarning(report_scraper_multicall, err, key, id)
			return nil, fmt.Errorf("%s=%s: %w", key, id, err)
		}
		if list, ok := res.([]any); ok {
			results = append(results, list...)
			continue
		}
		results = append(results, res)
	}

	if len(ids) > 0 && len(results) == 0 && empty != nil {
		if s.session.PassError() {
			return errorPayload(empty), nil
		}
		return nil, empty
	}
	return results, nil
}
