package guard

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"slices"
	"sort"
	"strings"
)

// Rule classifies every path under Prefix.
type Rule struct {
	Prefix       string   `mapstructure:"prefix"`
	RequiresAuth bool     `mapstructure:"requires_auth"`
	Roles        []string `mapstructure:"roles"`
}

// Config is the static route classification.
type Config struct {
	Rules       []Rule `mapstructure:"rules"`
	LoginPath   string `mapstructure:"login_path"`
	LogoutPath  string `mapstructure:"logout_path"`
	RefreshPath string `mapstructure:"refresh_path"`
	HomePath    string `mapstructure:"home_path"`
	// Exempt prefixes never require authentication. The login, logout and
	// refresh paths are always exempt.
	Exempt []string `mapstructure:"exempt"`
	// Locales are optional leading path segments ("en", "vi") stripped before
	// matching and kept on redirect targets.
	Locales []string `mapstructure:"locales"`
}

// Role names issued by the restaurant authority.
const (
	RoleOwner    = "Owner"
	RoleEmployee = "Employee"
	RoleGuest    = "Guest"
)

// DefaultConfig protects the management area and the guest ordering pages.
func DefaultConfig() Config {
	return Config{
		Rules: []Rule{
			{Prefix: "/manage", RequiresAuth: true, Roles: []string{RoleOwner, RoleEmployee}},
			{Prefix: "/manage/accounts", RequiresAuth: true, Roles: []string{RoleOwner}},
			{Prefix: "/guest", RequiresAuth: true, Roles: []string{RoleGuest}},
		},
		LoginPath:   "/login",
		LogoutPath:  "/logout",
		RefreshPath: "/refresh-token",
		HomePath:    "/",
	}
}

// Table is a compiled, immutable route classification.
type Table struct {
	rules       []Rule
	exempt      []string
	locales     []string
	loginPath   string
	logoutPath  string
	refreshPath string
	homePath    string
}

// NewTable validates cfg and compiles it. Empty paths take DefaultConfig
// values.
func NewTable(cfg Config) (*Table, error) {
	def := DefaultConfig()
	t := &Table{
		loginPath:   cleanPath(orDefault(cfg.LoginPath, def.LoginPath)),
		logoutPath:  cleanPath(orDefault(cfg.LogoutPath, def.LogoutPath)),
		refreshPath: cleanPath(orDefault(cfg.RefreshPath, def.RefreshPath)),
		homePath:    cleanPath(orDefault(cfg.HomePath, def.HomePath)),
	}

	seen := make(map[string]struct{}, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if strings.TrimSpace(r.Prefix) == "" {
			return nil, errors.New("guard: rule prefix must not be empty")
		}
		r.Prefix = cleanPath(r.Prefix)
		if _, dup := seen[r.Prefix]; dup {
			return nil, fmt.Errorf("guard: duplicate rule for %q", r.Prefix)
		}
		seen[r.Prefix] = struct{}{}
		r.Roles = slices.Clone(r.Roles)
		t.rules = append(t.rules, r)
	}
	sort.SliceStable(t.rules, func(i, j int) bool {
		return len(t.rules[i].Prefix) > len(t.rules[j].Prefix)
	})

	t.exempt = []string{t.loginPath, t.logoutPath, t.refreshPath}
	for _, p := range cfg.Exempt {
		t.exempt = append(t.exempt, cleanPath(p))
	}
	for _, l := range cfg.Locales {
		l = strings.Trim(strings.TrimSpace(l), "/")
		if l == "" || strings.Contains(l, "/") {
			return nil, fmt.Errorf("guard: invalid locale %q", l)
		}
		t.locales = append(t.locales, l)
	}
	return t, nil
}

// LoginPath returns the login route.
func (t *Table) LoginPath() string { return t.loginPath }

// HomePath returns the home route.
func (t *Table) HomePath() string { return t.homePath }

// RefreshPath returns the refresh confirmation route.
func (t *Table) RefreshPath() string { return t.refreshPath }

// LogoutPath returns the logout confirmation route.
func (t *Table) LogoutPath() string { return t.logoutPath }

// IsExempt reports whether path is a login, logout, refresh confirmation or
// configured exempt route.
func (t *Table) IsExempt(path string) bool {
	_, rest := t.splitLocale(cleanPath(path))
	return t.exemptPath(rest)
}

// Match returns the rule governing path. The zero Rule (no auth) is returned
// for unclassified and exempt paths.
func (t *Table) Match(path string) Rule {
	_, rest := t.splitLocale(cleanPath(path))
	return t.match(rest)
}

func (t *Table) match(path string) Rule {
	if t.exemptPath(path) {
		return Rule{}
	}
	for _, r := range t.rules {
		if hasSegmentPrefix(path, r.Prefix) {
			return r
		}
	}
	return Rule{}
}

func (t *Table) exemptPath(path string) bool {
	for _, p := range t.exempt {
		if hasSegmentPrefix(path, p) {
			return true
		}
	}
	return false
}

// splitLocale separates a leading locale segment from path. It returns the
// locale ("" when none) and the remaining path, always rooted.
func (t *Table) splitLocale(path string) (string, string) {
	for _, l := range t.locales {
		switch {
		case path == "/"+l:
			return l, "/"
		case strings.HasPrefix(path, "/"+l+"/"):
			return l, path[len(l)+1:]
		}
	}
	return "", path
}

func withLocale(locale, path string) string {
	if locale == "" {
		return path
	}
	if path == "/" {
		return "/" + locale
	}
	return "/" + locale + path
}

// hasSegmentPrefix matches whole path segments: "/manage" covers
// "/manage/dishes" but not "/management".
func hasSegmentPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func cleanPath(p string) string {
	if u, err := url.Parse(strings.TrimSpace(p)); err == nil && u.Path != "" {
		p = u.Path
	}
	// Dot segments resolve before matching so "/x/../manage" is "/manage".
	return path.Clean("/" + strings.TrimSpace(p))
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
