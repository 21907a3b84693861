package util

import (
	"net"
	"path"
	"regexp"
	"strings"
)

// KeyMatch matches a URL path against a pattern that may end in "*":
// "/foo/bar" matches "/foo/*".
func KeyMatch(key1, key2 string) bool {
	i := strings.Index(key2, "*")
	if i == -1 {
		return key1 == key2
	}
	if len(key1) > i {
		return key1[:i] == key2[:i]
	}
	return key1 == key2[:i]
}

var keyMatch2Param = regexp.MustCompile(`(.*):[^/]+(.*)`)

// KeyMatch2 matches a URL path against a pattern with "/*" wildcards and
// ":name" parameters: "/foo/baz" matches "/foo/:bar".
func KeyMatch2(key1, key2 string) bool {
	key2 = strings.ReplaceAll(key2, "/*", "/.*")
	for strings.Contains(key2, "/:") {
		key2 = keyMatch2Param.ReplaceAllString(key2, "$1[^/]+$2")
	}
	return RegexMatch(key1, "^"+key2+"$")
}

var keyMatch3Param = regexp.MustCompile(`(.*)\{[^/]+\}(.*)`)

// KeyMatch3 matches a URL path against a pattern with "/*" wildcards and
// "{name}" parameters: "/foo/baz" matches "/foo/{bar}".
func KeyMatch3(key1, key2 string) bool {
	key2 = strings.ReplaceAll(key2, "/*", "/.*")
	for strings.Contains(key2, "/{") {
		key2 = keyMatch3Param.ReplaceAllString(key2, "$1[^/]+$2")
	}
	return RegexMatch(key1, "^"+key2+"$")
}

// RegexMatch reports whether key1 contains a match of the pattern key2.
// An invalid pattern matches nothing.
func RegexMatch(key1, key2 string) bool {
	matched, err := regexp.MatchString(key2, key1)
	if err != nil {
		return false
	}
	return matched
}

// GlobMatch matches key1 against a shell glob pattern.
func GlobMatch(key1, key2 string) bool {
	matched, err := path.Match(key2, key1)
	if err != nil {
		return false
	}
	return matched
}

// IPMatch reports whether IP address key1 falls inside key2, which is either
// a single address or a CIDR. IPv4, IPv6, and IPv4-mapped IPv6 all compare
// through net.IP's canonical form.
func IPMatch(key1, key2 string) bool {
	ip1 := net.ParseIP(key1)
	if ip1 == nil {
		return false
	}

	if _, network, err := net.ParseCIDR(key2); err == nil {
		return network.Contains(ip1)
	}

	ip2 := net.ParseIP(key2)
	if ip2 == nil {
		return false
	}
	return ip1.Equal(ip2)
}
