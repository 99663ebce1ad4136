package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// TokenValidator validates client-presented tokens against a configured
// allow-list. The allow-list is a flat set: a token is either present and
// accepted or absent and rejected; there is no per-token metadata.
//
// TokenValidator is safe for concurrent use. Reads take a shared lock so
// validation on the connection path never contends with other readers.
type TokenValidator struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

// NewTokenValidator creates a validator from the given token set.
// Blank tokens are ignored.
func NewTokenValidator(tokens []string) *TokenValidator {
	v := &TokenValidator{
		tokens: make(map[string]struct{}, len(tokens)),
	}
	for _, token := range tokens {
		if token = strings.TrimSpace(token); token != "" {
			v.tokens[token] = struct{}{}
		}
	}
	return v
}

// Validate reports whether the given token is in the allow-list.
// The empty token is never valid.
func (v *TokenValidator) Validate(token string) bool {
	if token == "" {
		return false
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	_, ok := v.tokens[token]
	return ok
}

// Replace swaps the entire allow-list for a new token set.
// Connections already authenticated are unaffected; the handshake decision
// is made once per connection.
func (v *TokenValidator) Replace(tokens []string) {
	next := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if token = strings.TrimSpace(token); token != "" {
			next[token] = struct{}{}
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens = next
}

// Len returns the number of tokens currently in the allow-list.
func (v *TokenValidator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.tokens)
}

// LoadTokenFile reads a token file containing one token per line.
// Blank lines and lines starting with '#' are skipped.
func LoadTokenFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file %q: %w", path, err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read token file %q: %w", path, err)
	}

	return tokens, nil
}
