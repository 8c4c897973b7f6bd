package rio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestErrorKindString(t *testing.T) {
	require.Equal(t, "RegistrationFailed", KindRegistrationFailed.String())
	require.Equal(t, "ConnectionClosedDuringRead", KindConnectionClosedDuringRead.String())
	require.Equal(t, "Unknown", Kind(0).String())
}

func TestErrorUnwrapsCause(t *testing.T) {
	e := wrapError(KindReadGenericIO, unix.EIO, "error while reading from the connection")
	require.Equal(t, KindReadGenericIO, e.Kind)
	require.True(t, errors.Is(e, unix.EIO))
	require.Contains(t, e.Error(), "ReadGenericIO")
}
