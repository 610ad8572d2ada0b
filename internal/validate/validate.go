// Package validate contains request-time validation for scan targets and
// port specifications. Validation is deliberately permissive about IPv4
// octet ranges: the goal is to reject shell metacharacters and obvious
// garbage before anything reaches the scan subprocess, not to fully parse
// addressing.
package validate

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/scanhub/scanhub/internal/errors"
)

// ipv4Pattern matches dotted-quad addresses with an optional CIDR prefix.
// Octets are not range-checked; the scan tool reports unreachable targets
// on its own. The prefix length is checked, a /33 is never a valid network.
var ipv4Pattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?:/(\d{1,2}))?$`)

const (
	maxPortNumber    = 65535
	maxIPv4PrefixLen = 32
)

// Target validates a scan target: an IPv4/IPv6 address or CIDR network.
func Target(target string) error {
	if target == "" {
		return errors.NewScanError(errors.CodeTargetInvalid, "target is required")
	}

	if m := ipv4Pattern.FindStringSubmatch(target); m != nil {
		if m[1] == "" {
			return nil
		}
		if prefix, err := strconv.Atoi(m[1]); err == nil && prefix <= maxIPv4PrefixLen {
			return nil
		}
		return errors.ErrInvalidTarget(target)
	}

	// IPv6, with or without a prefix.
	if strings.Contains(target, "/") {
		if _, _, err := net.ParseCIDR(target); err == nil {
			return nil
		}
	} else if ip := net.ParseIP(target); ip != nil {
		return nil
	}

	return errors.ErrInvalidTarget(target)
}

// Ports validates a port specification: a comma-separated list of ports
// and inclusive ranges, e.g. "22,80,8000-8100". An empty specification is
// valid and means the scan tool's default ports.
func Ports(ports string) error {
	if ports == "" {
		return nil
	}

	for _, part := range strings.Split(ports, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return errors.ErrInvalidPorts(ports)
		}

		if start, end, ok := strings.Cut(part, "-"); ok {
			lo, err := parsePort(start)
			if err != nil {
				return errors.ErrInvalidPorts(ports)
			}
			hi, err := parsePort(end)
			if err != nil || lo > hi {
				return errors.ErrInvalidPorts(ports)
			}
			continue
		}

		if _, err := parsePort(part); err != nil {
			return errors.ErrInvalidPorts(ports)
		}
	}

	return nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 1 || n > maxPortNumber {
		return 0, strconv.ErrRange
	}
	return n, nil
}
