package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()
	assert.Equal(t, BuildInfo{Version: "dev", Commit: "none", BuildTime: "unknown"}, info)
	assert.Equal(t, "dev (none, built unknown)", info.String())
}
