package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"merge_select", "update_cascade", "left_join_condition"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestSnapshot(t *testing.T) {
	assert.Equal(t, "collection: Orders\n", string(Snapshot(&Result{Explain: "collection: Orders\n"})))
	assert.Equal(t, "error: UNSUPPORTED_JOIN\n", string(Snapshot(&Result{Code: "UNSUPPORTED_JOIN"})))
}
