package authclient

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgellow/authcallback/internal/cookie"
	"github.com/dgellow/authcallback/internal/idp"
	"github.com/dgellow/authcallback/internal/log"
)

// MaxChunkSize is the longest value written to a single session cookie.
// Browsers cap a cookie at about 4096 bytes including name and attributes.
const MaxChunkSize = 3180

// maxChunks bounds how many chunk cookies are read back
const maxChunks = 32

// Session is the signed-in state kept in the session cookie
type Session struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	TokenExpiry  time.Time    `json:"token_expiry,omitzero"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         idp.Identity `json:"user"`
}

// Expired reports whether the session is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func chunkName(base string, i int) string {
	return base + "." + strconv.Itoa(i)
}

// splitChunks cuts value into pieces of at most size characters
func splitChunks(value string, size int) []string {
	if len(value) <= size {
		return []string{value}
	}
	chunks := make([]string, 0, len(value)/size+1)
	for len(value) > size {
		chunks = append(chunks, value[:size])
		value = value[size:]
	}
	if value != "" {
		chunks = append(chunks, value)
	}
	return chunks
}

// chunkNames lists the session cookies currently present, base name included
func chunkNames(cookies cookie.Store, base string) []string {
	var names []string
	if lister, ok := cookies.(cookie.Lister); ok {
		for _, name := range lister.Names(base) {
			if name == base || isChunkName(base, name) {
				names = append(names, name)
			}
		}
		return names
	}

	if _, ok := cookies.Get(base); ok {
		names = append(names, base)
	}
	for i := range maxChunks {
		name := chunkName(base, i)
		if _, ok := cookies.Get(name); !ok {
			break
		}
		names = append(names, name)
	}
	return names
}

func isChunkName(base, name string) bool {
	suffix, ok := strings.CutPrefix(name, base+".")
	if !ok {
		return false
	}
	_, err := strconv.Atoi(suffix)
	return err == nil
}

// writeChunks stores value under base, split when needed, and removes
// any cookies left over from a previous larger or unsplit value
func writeChunks(cookies cookie.Store, base, value string, opts cookie.Options) {
	existing := chunkNames(cookies, base)
	chunks := splitChunks(value, MaxChunkSize)

	written := make(map[string]bool, len(chunks))
	if len(chunks) == 1 {
		cookies.Set(base, value, opts)
		written[base] = true
	} else {
		for i, chunk := range chunks {
			name := chunkName(base, i)
			cookies.Set(name, chunk, opts)
			written[name] = true
		}
	}

	for _, name := range existing {
		if !written[name] {
			cookies.Remove(name, cookie.Options{Path: opts.Path, Domain: opts.Domain})
		}
	}

	log.LogTraceWithFields("authclient", "Session cookie written", map[string]any{
		"chunks": len(chunks),
		"bytes":  len(value),
	})
}

// readChunks reassembles the value written by writeChunks
func readChunks(cookies cookie.Store, base string) (string, bool) {
	if value, ok := cookies.Get(base); ok && value != "" {
		return value, true
	}

	var b strings.Builder
	for i := range maxChunks {
		chunk, ok := cookies.Get(chunkName(base, i))
		if !ok {
			break
		}
		b.WriteString(chunk)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func encodeSession(s *Session) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	return string(data), nil
}

func decodeSession(data string) (*Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}
