// SPDX-License-Identifier: MPL-2.0

package secpass

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/xec-sh/xec-core/internal/core"
)

// Handler stores sudo passwords for the lifetime of an SSH adapter and
// generates the askpass scripts sudo invokes to retrieve them.
//
// Every operation fails with DisposedError once Dispose has run.
type Handler struct {
	mu       sync.Mutex
	dir      string
	entries  map[string][]byte // id -> scrubbable password bytes
	scripts  map[string]string // id -> generated script path
	disposed bool
}

// New creates a Handler whose generated scripts live under dir (typically
// os.TempDir()).
func New(dir string) *Handler {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Handler{
		dir:     dir,
		entries: make(map[string][]byte),
		scripts: make(map[string]string),
	}
}

// CreateAskpassScript stores password under a random id and writes an
// executable script (mode 0o700, name askpass-<hex>.sh) that prints it and
// exits 0. Returns the script path.
func (h *Handler) CreateAskpassScript(password string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return "", disposedErr()
	}

	id, err := randomHex(8)
	if err != nil {
		return "", fmt.Errorf("generate askpass id: %w", err)
	}

	path := filepath.Join(h.dir, fmt.Sprintf("askpass-%s.sh", id))
	script := fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n' \"$SUDO_PASS_%s\"\n", id)
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		return "", fmt.Errorf("write askpass script: %w", err)
	}

	h.entries[id] = []byte(password)
	h.scripts[id] = path
	return path, nil
}

// CreateSecureEnv returns an environment map with SUDO_ASKPASS set to
// askpassPath and SUDO_PASS_<id> set to the password that script prints,
// merged over baseEnv.
func (h *Handler) CreateSecureEnv(askpassPath string, baseEnv map[string]string) (map[string]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return nil, disposedErr()
	}

	id := idFromScriptPath(askpassPath)
	password, ok := h.entries[id]
	if !ok {
		return nil, fmt.Errorf("no password registered for askpass script %q", askpassPath)
	}

	env := make(map[string]string, len(baseEnv)+2)
	for k, v := range baseEnv {
		env[k] = v
	}
	env["SUDO_ASKPASS"] = askpassPath
	env["SUDO_PASS_"+id] = string(password)
	return env, nil
}

// Cleanup unlinks every generated script and zeroes all stored passwords,
// without disposing the handler (it remains usable afterward).
func (h *Handler) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupLocked()
}

func (h *Handler) cleanupLocked() {
	for id, path := range h.scripts {
		_ = os.Remove(path)
		delete(h.scripts, id)
	}
	for id, pw := range h.entries {
		for i := range pw {
			pw[i] = 0
		}
		delete(h.entries, id)
	}
}

// Dispose scrubs all state and marks the handler permanently unusable.
// Idempotent.
func (h *Handler) Dispose() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return nil
	}
	h.cleanupLocked()
	h.disposed = true
	return nil
}

func disposedErr() error {
	return &core.DisposedError{Component: "SecurePasswordHandler"}
}

func idFromScriptPath(path string) string {
	base := filepath.Base(path)
	base = trimPrefix(base, "askpass-")
	return trimSuffix(base, ".sh")
}

func trimPrefix(s, prefix string) string {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

func trimSuffix(s, suffix string) string {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// MaskPassword returns text with every occurrence of password replaced by
// ***MASKED***, treating password as a literal (regex-special characters in
// it are escaped, not interpreted).
func MaskPassword(text, password string) string {
	if password == "" {
		return text
	}
	re := regexp.MustCompile(regexp.QuoteMeta(password))
	return re.ReplaceAllString(text, "***MASKED***")
}

const (
	upperClass  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerClass  = "abcdefghijklmnopqrstuvwxyz"
	digitClass  = "0123456789"
	symbolClass = "!@#$%^&*()-_=+"
	allClasses  = upperClass + lowerClass + digitClass + symbolClass
)

// GeneratePassword draws length characters from a cryptographic RNG across
// upper/lower/digit/symbol classes, guaranteeing at least one of each class
// when length >= 8.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("password length must be positive")
	}

	out := make([]byte, length)
	if err := fillRandom(out, allClasses); err != nil {
		return "", err
	}

	if length >= 8 {
		classes := []string{upperClass, lowerClass, digitClass, symbolClass}
		for i, class := range classes {
			ch, err := randomChar(class)
			if err != nil {
				return "", err
			}
			out[i] = ch
		}
		if err := shuffle(out); err != nil {
			return "", err
		}
	}

	return string(out), nil
}

func fillRandom(dst []byte, alphabet string) error {
	for i := range dst {
		ch, err := randomChar(alphabet)
		if err != nil {
			return err
		}
		dst[i] = ch
	}
	return nil
}

func randomChar(alphabet string) (byte, error) {
	idx := make([]byte, 1)
	for {
		if _, err := rand.Read(idx); err != nil {
			return 0, err
		}
		// Rejection sampling avoids modulo bias.
		if int(idx[0]) < (256/len(alphabet))*len(alphabet) {
			return alphabet[int(idx[0])%len(alphabet)], nil
		}
	}
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		jb := make([]byte, 1)
		if _, err := rand.Read(jb); err != nil {
			return err
		}
		j := int(jb[0]) % (i + 1)
		b[i], b[j] = b[j], b[i]
	}
	return nil
}
