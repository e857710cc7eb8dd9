package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.Wazero)
}

func TestString(t *testing.T) {
	assert.Equal(t, "injection dev (commit abc, built now)",
		Info{Version: "dev", CommitHash: "abc", BuildTime: "now"}.String())
	assert.Equal(t, "injection v1.2.0 (commit abc, built now)",
		Info{Version: "v1.2.0", CommitHash: "abc", BuildTime: "now"}.String())
}

func TestShort(t *testing.T) {
	assert.Equal(t, "0123456", Info{CommitHash: "0123456789abcdef"}.Short())
	assert.Equal(t, "dev", Info{CommitHash: "dev"}.Short())
}
