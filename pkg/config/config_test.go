package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRequiresDeviceIDAndPassword(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts := RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	_, err := opts.Validate()
	require.Error(t, err)
}

func TestValidateAppliesServerOverride(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-device-id=1", "-password=secret", "-server=example.test"}))

	endpoints, err := opts.Validate()
	require.NoError(t, err)
	require.Equal(t, "example.test", endpoints.Host)
	require.Equal(t, 8089, endpoints.APIPort)
}

func TestHandleOverrideDetection(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-device-id=1", "-password=secret"}))
	require.False(t, opts.HasHandleOverride())

	fs2 := flag.NewFlagSet("test2", flag.ContinueOnError)
	opts2 := RegisterFlags(fs2)
	require.NoError(t, fs2.Parse([]string{"-device-id=1", "-password=secret", "-handle=42"}))
	require.True(t, opts2.HasHandleOverride())
	require.Equal(t, 42, opts2.HandleOverride)
}
