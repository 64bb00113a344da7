package ioutil

import (
	"fmt"
	"io"
	"strings"
)

// ReadLimited returns at most limit bytes of r with surrounding whitespace
// trimmed, for quoting provider error bodies in logs and errors. A read
// failure is described in the result instead of being dropped.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return strings.TrimSpace(string(body))
}
