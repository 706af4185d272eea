package discard

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	r := strings.NewReader("abc")
	require.NoError(t, Writer{}.Write(context.Background(), "x", r))
	require.Zero(t, r.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Writer{}.Write(ctx, "x", strings.NewReader("abc")), context.Canceled)
}
