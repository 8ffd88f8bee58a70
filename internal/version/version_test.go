package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetUsesLinkedValues(t *testing.T) {
	previousVersion, previousCommit, previousBuilt := Version, GitCommit, Built
	t.Cleanup(func() {
		Version, GitCommit, Built = previousVersion, previousCommit, previousBuilt
	})

	Version = "1.2.3"
	GitCommit = "0123456789abcdef"
	Built = "2026-01-11T12:34:56Z"

	info := Get()
	require.Equal(t, "1.2.3", info.Version)
	require.Equal(t, "0123456789abcdef", info.GitCommit)
	require.Equal(t, runtime.Version(), info.GoVersion)
	require.Equal(t, "filemonitor 1.2.3 (0123456789ab) built 2026-01-11T12:34:56Z "+runtime.Version(), info.String())
}

func TestStringWithoutCommit(t *testing.T) {
	info := Info{Version: "dev", GoVersion: "go1.25.0"}
	require.Equal(t, "filemonitor dev go1.25.0", info.String())
}
