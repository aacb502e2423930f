// Package parser turns bait-server access log lines into raw traffic events.
package parser

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/V4T54L/baitwatch/internal/domain"
)

// TimestampLayout is the nginx $time_local layout.
const TimestampLayout = "02/Jan/2006:15:04:05 -0700"

// accessLogRegex matches both the nginx combined format
// (ip - user [ts] "req" status bytes "ref" "ua") and the shorter bait-server
// layout without the remote user (ip - [ts] ...).
// Groups: 1 ip, 2 timestamp, 3 request, 4 status, 5 bytes, 6 referer, 7 user-agent.
var accessLogRegex = regexp.MustCompile(
	`^(\S+)\s+(?:\S+\s+){1,2}\[([^\]]+)\]\s+` +
		`"((?:[^"\\]|\\.)*)"\s+(\S+)\s+(\S+)\s+` +
		`"((?:[^"\\]|\\.)*)"\s+"((?:[^"\\]|\\.)*)"`)

// Parse converts one log line, without its trailing newline, into an event.
// The returned error wraps domain.ErrMalformedLine.
func Parse(line string) (domain.RawTrafficEvent, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return domain.RawTrafficEvent{}, malformed("empty line")
	}

	m := accessLogRegex.FindStringSubmatch(line)
	if m == nil {
		return domain.RawTrafficEvent{}, malformed("line does not match access log layout")
	}

	addr, err := netip.ParseAddr(m[1])
	if err != nil {
		return domain.RawTrafficEvent{}, malformed(fmt.Sprintf("invalid client ip %q", m[1]))
	}

	ts, err := time.Parse(TimestampLayout, m[2])
	if err != nil {
		return domain.RawTrafficEvent{}, malformed(fmt.Sprintf("invalid timestamp %q", m[2]))
	}

	status, err := parseStatus(m[4])
	if err != nil {
		return domain.RawTrafficEvent{}, err
	}

	if m[5] != "-" {
		if _, err := strconv.ParseUint(m[5], 10, 64); err != nil {
			return domain.RawTrafficEvent{}, malformed(fmt.Sprintf("invalid byte count %q", m[5]))
		}
	}

	return domain.RawTrafficEvent{
		Timestamp: ts.UTC(),
		IP:        addr.String(),
		UserAgent: absentAsEmpty(m[7]),
		Path:      extractPath(m[3]),
		Status:    status,
		Referer:   absentAsEmpty(m[6]),
	}, nil
}

func parseStatus(s string) (int, error) {
	if len(s) != 3 {
		return 0, malformed(fmt.Sprintf("invalid status %q", s))
	}
	status, err := strconv.Atoi(s)
	if err != nil || status < 100 {
		return 0, malformed(fmt.Sprintf("invalid status %q", s))
	}
	return status, nil
}

// extractPath returns the target of "METHOD PATH PROTOCOL". Requests that do
// not have that shape (binary probes, garbage) are kept verbatim.
func extractPath(request string) string {
	parts := strings.Fields(request)
	if len(parts) == 2 || len(parts) == 3 {
		return parts[1]
	}
	return request
}

func absentAsEmpty(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedLine, reason)
}
