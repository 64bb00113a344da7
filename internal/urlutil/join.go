package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// JoinPath appends path segments to base, collapsing duplicate slashes.
// A trailing slash on the last segment is kept.
func JoinPath(base string, elems ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if len(elems) == 0 {
		return u.String(), nil
	}

	u.Path = path.Join(append([]string{"/", u.Path}, elems...)...)
	if strings.HasSuffix(elems[len(elems)-1], "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawPath = ""
	return u.String(), nil
}
