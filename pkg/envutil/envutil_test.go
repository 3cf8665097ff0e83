package envutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGet_FallsBackWhenUnset(t *testing.T) {
	require.Equal(t, "default", Get("ENVUTIL_TEST_UNSET", "default"))
	t.Setenv("ENVUTIL_TEST_SET", "value")
	require.Equal(t, "value", Get("ENVUTIL_TEST_SET", "default"))
}

func TestGetInt_IgnoresInvalidValues(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_INT", "42")
	require.Equal(t, 42, GetInt("ENVUTIL_TEST_INT", 7))
	t.Setenv("ENVUTIL_TEST_INT", "not-a-number")
	require.Equal(t, 7, GetInt("ENVUTIL_TEST_INT", 7))
}

func TestGetBoolLoose_AcceptsCommonForms(t *testing.T) {
	for _, val := range []string{"true", "1", "yes", "on", "TRUE"} {
		t.Setenv("ENVUTIL_TEST_BOOL", val)
		require.True(t, GetBoolLoose("ENVUTIL_TEST_BOOL", false), "value %q", val)
	}
	t.Setenv("ENVUTIL_TEST_BOOL", "off")
	require.False(t, GetBoolLoose("ENVUTIL_TEST_BOOL", true))
	require.True(t, GetBoolLoose("ENVUTIL_TEST_BOOL_UNSET", true))
}

func TestGetDuration_ParsesOrFallsBack(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_DUR", "250ms")
	require.Equal(t, 250*time.Millisecond, GetDuration("ENVUTIL_TEST_DUR", time.Second))
	t.Setenv("ENVUTIL_TEST_DUR", "soon")
	require.Equal(t, time.Second, GetDuration("ENVUTIL_TEST_DUR", time.Second))
}
