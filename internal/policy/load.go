package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"mcpsentry/internal/logging"
)

const appName = "mcpsentry"

// ConfigPath returns the default policy file location for the current
// platform, following the XDG base directory layout.
func ConfigPath() (string, error) {
	dir := filepath.Join(xdg.ConfigHome, appName)
	path := filepath.Join(dir, "policy.yaml")
	logging.Debug("determined default policy path", "path", path)
	return path, nil
}

// FindPolicyFile returns the default policy path and whether it exists.
func FindPolicyFile() (string, bool) {
	primary, err := ConfigPath()
	if err != nil {
		logging.Error("failed to determine policy path", "error", err)
		return "", false
	}
	if _, err := os.Stat(primary); err == nil {
		return primary, true
	}
	return primary, false
}

// Load loads the policy from the default XDG location.
func Load() (*Policy, error) {
	path, exists := FindPolicyFile()
	if !exists {
		return nil, &PolicyLoadError{Path: path, Cause: fmt.Errorf("no policy file found")}
	}
	return LoadFrom(path)
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// LoadFrom parses the policy document at path, expands ${NAME} environment
// references in the path-typed leaves (filesystem.allowed_paths,
// filesystem.denied_paths, audit.log_path), normalizes rate_limits so
// "default" is always present, and validates the result.
func LoadFrom(path string) (*Policy, error) {
	logging.Info("reading policy file", "path", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, &PolicyLoadError{Path: path, Cause: fmt.Errorf("unreadable: %w", err)}
	}
	defer f.Close()

	var p Policy
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	if err := dec.Decode(&p); err != nil {
		return nil, &PolicyLoadError{Path: path, Cause: fmt.Errorf("malformed yaml: %w", err)}
	}

	for i, g := range p.Filesystem.AllowedGlobs {
		p.Filesystem.AllowedGlobs[i] = expandEnv(g)
	}
	for i, g := range p.Filesystem.DeniedGlobs {
		p.Filesystem.DeniedGlobs[i] = expandEnv(g)
	}
	p.Audit.LogPath = expandEnv(p.Audit.LogPath)

	if err := p.normalizeAndValidate(); err != nil {
		return nil, &PolicyLoadError{Path: path, Cause: err}
	}

	return &p, nil
}

// normalizeAndValidate fills defaults (rate_limits.default, tools.timeout_s)
// and rejects schema violations.
func (p *Policy) normalizeAndValidate() error {
	if p.Tools.RateLimits == nil {
		p.Tools.RateLimits = map[string]int{}
	}
	if _, ok := p.Tools.RateLimits["default"]; !ok {
		p.Tools.RateLimits["default"] = defaultRateLimitPerMinute
	}
	for tool, limit := range p.Tools.RateLimits {
		if limit <= 0 {
			return fmt.Errorf("rate_limits.%s must be a positive integer, got %d", tool, limit)
		}
	}

	if p.Tools.TimeoutSeconds <= 0 {
		p.Tools.TimeoutSeconds = defaultTimeoutSeconds
	}

	for _, ep := range p.Network.AllowedEndpoints {
		if ep.Host == "" {
			return fmt.Errorf("network.allowed_endpoints entry missing host")
		}
	}

	return nil
}
