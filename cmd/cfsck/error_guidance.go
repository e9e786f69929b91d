package main

import (
	"context"
	"errors"
	"net"

	"cfsck/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "resource_exhausted":
			lines = append(lines, "hint: another repair is running; retry once it has finished.")
		case "not_found":
			lines = append(lines, "hint: list registered ids with: cfsck context list, cfsck filestore list, cfsck database list")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify CFSCK_API_URL points to a cfsck server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; large scopes take long, increase CFSCK_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a cfsck server is running at CFSCK_API_URL.",
			"hint: start local server manually with: cfsck srv",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
