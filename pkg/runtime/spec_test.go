package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSizeString(t *testing.T) {
	cases := map[string]int64{
		"512m":  512 * 1000 * 1000,
		"1Gi":   1024 * 1024 * 1024,
		"100kb": 100 * 1000,
		"2g":    2 * 1000 * 1000 * 1000,
		"1024":  1024,
	}
	for input, want := range cases {
		got, err := parseSizeString(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}

func TestParseSizeStringInvalid(t *testing.T) {
	_, err := parseSizeString("not-a-size")
	assert.Error(t, err)
}

func TestEnforceMinimumMemory(t *testing.T) {
	got, err := parseAndEnforceMinimumMemory("1m")
	require.NoError(t, err)
	assert.Equal(t, MinMemoryBytes, got)

	got, err = parseAndEnforceMinimumMemory("512m")
	require.NoError(t, err)
	assert.Equal(t, int64(512*1000*1000), got)
}

func TestEnforceMinimumDisk(t *testing.T) {
	got, err := parseAndEnforceMinimumDisk("1m")
	require.NoError(t, err)
	assert.Equal(t, MinDiskBytes, got)
}

func TestNormalizeMemoryForK8sRewritesMSuffix(t *testing.T) {
	// "512m" must become mebibytes, not be misread by Kubernetes as
	// milli-units (which would happen if the bare "m" suffix survived).
	got, err := normalizeMemoryForK8s("512m")
	require.NoError(t, err)
	assert.Equal(t, "512Mi", got)
}

func TestNormalizeMemoryForK8sEnforcesFloor(t *testing.T) {
	got, err := normalizeMemoryForK8s("1m")
	require.NoError(t, err)
	assert.Equal(t, "134217728", got)
}
