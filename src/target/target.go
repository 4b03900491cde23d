// Package target parses Docker daemon endpoints given on the command line
// or in the config file.
package target

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// Target represents a parsed daemon endpoint.
// Examples: unix:///var/run/docker.sock, tcp://10.0.0.5:2375
type Target struct {
	// Raw is the original input string.
	Raw string
	// Scheme is the transport (unix, tcp or npipe).
	Scheme string
	// Value is the scheme-specific address: a socket or pipe path for unix
	// and npipe, host:port for tcp.
	Value string
}

// SupportedSchemes lists the schemes the parser accepts.
var SupportedSchemes = map[string]struct{}{
	"unix":  {},
	"tcp":   {},
	"npipe": {},
}

// Parse parses an endpoint like "unix:///path" or "tcp://host:port". The
// short forms "unix:/path" and "tcp:host:port" are accepted too.
func Parse(raw string) (Target, error) {
	t := Target{Raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" {
		return t, fmt.Errorf("endpoint must not be empty; expected format 'unix:///path' or 'tcp://host:port'")
	}
	i := strings.Index(s, ":")
	if i <= 0 || i == len(s)-1 {
		return t, fmt.Errorf("invalid endpoint %q; expected format '<scheme>://<address>'", raw)
	}
	scheme := strings.ToLower(s[:i])
	val := s[i+1:]
	if scheme == "ssh" {
		return t, fmt.Errorf("ssh endpoints need the docker CLI connection helper; use a unix or tcp endpoint")
	}
	if _, ok := SupportedSchemes[scheme]; !ok {
		return t, fmt.Errorf("unsupported endpoint scheme %q", scheme)
	}
	t.Scheme = scheme

	switch scheme {
	case "unix", "npipe":
		// unix:///run/docker.sock keeps its leading slash after "//"
		val = strings.TrimPrefix(val, "//")
		if val == "" {
			return t, fmt.Errorf("%s endpoint path must not be empty", scheme)
		}
		if scheme == "unix" {
			clean := filepath.Clean(val)
			if !filepath.IsAbs(clean) {
				return t, fmt.Errorf("unix socket must be an absolute path: %q", val)
			}
			val = clean
		}
	case "tcp":
		val = strings.TrimSuffix(strings.TrimPrefix(val, "//"), "/")
		host, port, err := net.SplitHostPort(val)
		if err != nil {
			return t, fmt.Errorf("tcp endpoint must be host:port: %w", err)
		}
		if host == "" || port == "" {
			return t, fmt.Errorf("tcp endpoint must be host:port: %q", val)
		}
	}
	t.Value = val
	return t, nil
}

// IsSupported returns true if the scheme is recognized.
func IsSupported(scheme string) bool {
	_, ok := SupportedSchemes[strings.ToLower(scheme)]
	return ok
}

// String returns the endpoint in the URL form the Docker client expects.
func (t Target) String() string {
	if t.Scheme != "" {
		return t.Scheme + "://" + t.Value
	}
	return t.Raw
}
