package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoDefault(t *testing.T) {
	info := Info()
	assert.Contains(t, info, "maestro dev")
	assert.Contains(t, info, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestInfoWithBuildValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = origVersion, origCommit, origDate })

	Version, Commit, Date = "0.3.0", "abc1234567890", "2026-10-01"

	info := Info()
	assert.Contains(t, info, "0.3.0")
	assert.Contains(t, info, "commit: abc1234,")
	assert.Contains(t, info, "2026-10-01")
	assert.Equal(t, "abc1234", Short())
}

func TestShortKeepsShortHashes(t *testing.T) {
	orig := Commit
	t.Cleanup(func() { Commit = orig })

	for _, c := range []string{"", "abc", "1234567"} {
		Commit = c
		assert.Equal(t, c, Short())
	}
}
