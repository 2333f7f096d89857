package uri

import "strings"

// Resolve applies RFC 3986 §5.2.4 reference resolution of ref against
// base, producing a new absolute URI. If stripFragment is true, a
// trailing fragment on the result is dropped. If pathOnly is true,
// scheme/userinfo/host/port are always taken from base regardless of
// what ref specifies — used when ref is known to be a path-only
// redirect target relative to the same device.
func Resolve(base *URI, ref string, stripFragment, pathOnly bool) (*URI, error) {
	if stripFragment {
		if i := strings.IndexByte(ref, '#'); i >= 0 {
			ref = ref[:i]
		}
	}

	if ref == "" {
		return base.Clone(), nil
	}

	// Absolute reference: parse directly, unless pathOnly demands the
	// base's authority regardless.
	if looksAbsolute(ref) && !pathOnly {
		return Parse(ref, false)
	}

	if pathOnly {
		// Extract just a path[?query] from ref, discarding any scheme
		// or authority it might otherwise carry.
		ref = stripAuthority(ref)
	}

	var newPath, newQuery string
	hasQuery := false

	if strings.HasPrefix(ref, "?") {
		newPath = base.Path()
		newQuery = ref[1:]
		hasQuery = true
	} else if strings.HasPrefix(ref, "/") {
		qi := strings.IndexByte(ref, '?')
		if qi >= 0 {
			newPath = ref[:qi]
			newQuery = ref[qi+1:]
			hasQuery = true
		} else {
			newPath = ref
		}
	} else {
		// Relative path: merge with base per RFC 3986 §5.3.
		qi := strings.IndexByte(ref, '?')
		relPath := ref
		if qi >= 0 {
			relPath = ref[:qi]
			newQuery = ref[qi+1:]
			hasQuery = true
		}
		newPath = mergePaths(base.Path(), relPath)
	}

	newPath = removeDotSegments(newPath)

	raw := base.Scheme.String() + "://"
	if base.Userinfo() != "" {
		raw += base.Userinfo() + "@"
	}
	hostPart := base.Host()
	if base.hasLiteral && base.literalAddr.Is6() {
		hostPart = "[" + hostPart + "]"
	}
	raw += hostPart
	if base.Port() != "" {
		raw += ":" + base.Port()
	}
	raw += newPath
	if hasQuery {
		raw += "?" + newQuery
	}

	return Parse(raw, false)
}

func looksAbsolute(ref string) bool {
	i := strings.IndexByte(ref, ':')
	if i <= 0 {
		return false
	}
	scheme := ref[:i]
	for _, c := range scheme {
		if !(c == '+' || c == '-' || c == '.' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

// stripAuthority drops a leading scheme/authority from ref, keeping
// only path[?query][#fragment].
func stripAuthority(ref string) string {
	if looksAbsolute(ref) {
		if i := strings.Index(ref, "://"); i >= 0 {
			ref = ref[i+3:]
			if j := strings.IndexAny(ref, "/?#"); j >= 0 {
				ref = ref[j:]
			} else {
				ref = "/"
			}
		}
	} else if strings.HasPrefix(ref, "//") {
		ref = ref[2:]
		if j := strings.IndexAny(ref, "/?#"); j >= 0 {
			ref = ref[j:]
		} else {
			ref = "/"
		}
	}
	if ref == "" || ref[0] != '/' && ref[0] != '?' {
		ref = "/" + ref
	}
	return ref
}

// mergePaths implements RFC 3986 §5.3 path merging for a relative
// reference against a base path.
func mergePaths(basePath, relPath string) string {
	if basePath == "" {
		return "/" + relPath
	}
	if i := strings.LastIndexByte(basePath, '/'); i >= 0 {
		return basePath[:i+1] + relPath
	}
	return relPath
}

// removeDotSegments implements RFC 3986 §5.2.4.
func removeDotSegments(path string) string {
	var out []string
	trailingSlash := strings.HasSuffix(path, "/")

	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case ".":
			// drop
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}

	result := strings.Join(out, "/")
	if !strings.HasPrefix(result, "/") {
		result = "/" + result
	}
	if trailingSlash && !strings.HasSuffix(result, "/") {
		result += "/"
	}
	if result == "" {
		result = "/"
	}
	return result
}
