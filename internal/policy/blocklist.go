package policy

import "strings"

// hostBlocklist stores exact hosts and suffix wildcards ("*.example.com" or ".example.com").
type hostBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostBlocklist(patterns []string) *hostBlocklist {
	list := &hostBlocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			list.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			list.addSuffix(strings.TrimPrefix(value, "."))
		default:
			list.exact[value] = struct{}{}
		}
	}
	return list
}

func (b *hostBlocklist) addSuffix(suffix string) {
	if suffix != "" {
		b.suffixes = append(b.suffixes, suffix)
	}
}

func (b *hostBlocklist) matches(host string) bool {
	if b == nil || host == "" {
		return false
	}
	host = strings.ToLower(host)
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
