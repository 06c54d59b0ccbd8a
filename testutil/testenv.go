// Package testutil provides shared environment helpers for the live API
// tests under e2e/. It depends only on the standard library so the e2e
// package can use it without importing internal/.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by the live tests.
const (
	EnvE2EAppKey    = "KAKAO_GO_E2E_APP_KEY"
	EnvE2ETokenFile = "KAKAO_GO_E2E_TOKEN_FILE"
	EnvE2EWrite     = "KAKAO_GO_E2E_WRITE"
)

// credentialDir is where integration-bootstrap stores the test token.
const credentialDir = ".testdata"

// LoadDotEnv reads KEY=VALUE pairs from a .env file. A missing file is not
// an error, and variables already set in the environment win.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// FindModuleRoot walks up from the working directory to the directory
// holding go.mod, or returns fallback.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// CredentialTokenPath is the token file integration-bootstrap writes.
func CredentialTokenPath(moduleRoot string) string {
	return filepath.Join(moduleRoot, credentialDir, "token.json")
}

// RequireCredentials returns the app key and token file for live tests,
// exiting the process when either is missing.
func RequireCredentials(moduleRoot string) (appKey, tokenFile string) {
	appKey = os.Getenv(EnvE2EAppKey)
	if appKey == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", EnvE2EAppKey)
		os.Exit(1)
	}

	tokenFile = os.Getenv(EnvE2ETokenFile)
	if tokenFile == "" {
		tokenFile = CredentialTokenPath(moduleRoot)
	}

	if _, err := os.Stat(tokenFile); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: token file %s not found\n", tokenFile)
		fmt.Fprintln(os.Stderr, "Run 'go run ./cmd/integration-bootstrap' to sign in a test account.")
		os.Exit(1)
	}

	return appKey, tokenFile
}

// WritesAllowed reports whether live tests may create and delete stories.
func WritesAllowed() bool {
	return os.Getenv(EnvE2EWrite) == "1"
}

// CopyFile copies src to dst with the given permissions, exiting the
// process on failure.
func CopyFile(src, dst string, perm os.FileMode) {
	data, err := os.ReadFile(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot read %s: %v\n", src, err)
		os.Exit(1)
	}

	if err := os.WriteFile(dst, data, perm); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: writing %s: %v\n", dst, err)
		os.Exit(1)
	}
}
