package logging

import (
	"testing"

	"creditvault/crypto"

	"github.com/stretchr/testify/require"
)

func TestMaskAddressKeepsPrefixAndTail(t *testing.T) {
	addr := crypto.LabelAddress(crypto.AccountPrefix, "holder").String()
	masked := MaskAddress(addr)
	require.Equal(t, "cv1..."+addr[len(addr)-4:], masked)
	require.Equal(t, RedactedValue, MaskAddress("short"))
	require.Equal(t, RedactedValue, MaskAddress(""))
}

func TestMaskFieldHonoursAllowlist(t *testing.T) {
	require.Equal(t, "bullet", MaskField("kind", "bullet").Value.String())
	require.Equal(t, RedactedValue, MaskField("receiver", "cv1abc").Value.String())
	require.Equal(t, " ", MaskField("receiver", " ").Value.String())
	require.True(t, IsAllowlisted(" Vault "))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", parseLevel("debug").String())
	require.Equal(t, "WARN", parseLevel("WARNING").String())
	require.Equal(t, "INFO", parseLevel("").String())
}
