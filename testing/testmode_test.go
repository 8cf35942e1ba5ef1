package testing_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tallybooks/tallybooks/internal/app"
	tbtesting "github.com/tallybooks/tallybooks/testing"
)

func TestImportEnablesTestMode(t *testing.T) {
	require.Equal(t, app.TestModeEnv, tbtesting.TestModeEnv)
	require.Equal(t, "1", os.Getenv(tbtesting.TestModeEnv))
	require.True(t, app.InTestMode())
}
