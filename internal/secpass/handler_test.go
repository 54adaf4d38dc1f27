// SPDX-License-Identifier: MPL-2.0

package secpass

import (
	"os"
	"strings"
	"testing"
)

func TestCreateAskpassScriptAndSecureEnv(t *testing.T) {
	t.Parallel()

	h := New(t.TempDir())
	defer h.Dispose()

	path, err := h.CreateAskpassScript("s3cret")
	if err != nil {
		t.Fatalf("CreateAskpassScript: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat generated script: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf("expected mode 0700, got %v", info.Mode().Perm())
	}

	env, err := h.CreateSecureEnv(path, map[string]string{"PATH": "/usr/bin"})
	if err != nil {
		t.Fatalf("CreateSecureEnv: %v", err)
	}
	if env["SUDO_ASKPASS"] != path {
		t.Errorf("expected SUDO_ASKPASS %q, got %q", path, env["SUDO_ASKPASS"])
	}
	if env["PATH"] != "/usr/bin" {
		t.Error("expected baseEnv to be preserved")
	}

	found := false
	for k, v := range env {
		if strings.HasPrefix(k, "SUDO_PASS_") && v == "s3cret" {
			found = true
		}
	}
	if !found {
		t.Error("expected a SUDO_PASS_<id> entry containing the password")
	}
}

func TestHandlerDisposeIsIdempotentAndBlocksFurtherUse(t *testing.T) {
	t.Parallel()

	h := New(t.TempDir())
	path, err := h.CreateAskpassScript("pw")
	if err != nil {
		t.Fatalf("CreateAskpassScript: %v", err)
	}

	if err := h.Dispose(); err != nil {
		t.Fatalf("first Dispose: %v", err)
	}
	if err := h.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected askpass script to be removed after dispose")
	}

	if _, err := h.CreateAskpassScript("pw2"); err == nil {
		t.Error("expected CreateAskpassScript to fail after Dispose")
	}
}

func TestMaskPasswordEscapesRegexMetacharacters(t *testing.T) {
	t.Parallel()

	text := "login failed for pass (a.b*c)"
	masked := MaskPassword(text, "(a.b*c)")
	if strings.Contains(masked, "(a.b*c)") {
		t.Error("expected password to be masked")
	}
	if !strings.Contains(masked, "***MASKED***") {
		t.Error("expected mask marker in output")
	}
}

func TestMaskPasswordEmptyPasswordIsNoop(t *testing.T) {
	t.Parallel()

	text := "nothing to mask here"
	if got := MaskPassword(text, ""); got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestGeneratePasswordLengthAndClasses(t *testing.T) {
	t.Parallel()

	pw, err := GeneratePassword(16)
	if err != nil {
		t.Fatalf("GeneratePassword: %v", err)
	}
	if len(pw) != 16 {
		t.Fatalf("expected length 16, got %d", len(pw))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range pw {
		switch {
		case strings.ContainsRune(upperClass, r):
			hasUpper = true
		case strings.ContainsRune(lowerClass, r):
			hasLower = true
		case strings.ContainsRune(digitClass, r):
			hasDigit = true
		case strings.ContainsRune(symbolClass, r):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		t.Errorf("expected all four character classes in %q", pw)
	}
}

func TestGeneratePasswordRejectsNonPositiveLength(t *testing.T) {
	t.Parallel()

	if _, err := GeneratePassword(0); err == nil {
		t.Error("expected an error for length 0")
	}
}
