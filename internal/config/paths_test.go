package config

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath_XDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG only applies on Linux")
	}

	t.Setenv(xdgConfigHomeEnv, "/custom/config")
	assert.Equal(t, filepath.Join("/custom/config", appName, configFileName), DefaultConfigPath())
}

func TestDefaultTokenPath(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG only applies on Linux")
	}

	t.Setenv(xdgDataHomeEnv, "/custom/data")
	assert.Equal(t, filepath.Join("/custom/data", appName, tokenFileName), DefaultTokenPath("file"))
	assert.Equal(t, filepath.Join("/custom/data", appName, tokenDBFileName), DefaultTokenPath("sqlite"))
	assert.Empty(t, DefaultTokenPath("redis"))
}

func TestExpandTilde(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, "/home/tester/tokens/t.json", expandTilde("~/tokens/t.json"))
	assert.Equal(t, "/abs/t.json", expandTilde("/abs/t.json"))
	assert.Equal(t, "~user/t.json", expandTilde("~user/t.json"))
}
