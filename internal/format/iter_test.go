package format_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ipf/internal/format"
	"github.com/meigma/ipf/internal/ipftype"
	"github.com/meigma/ipf/internal/testutil"
)

func TestIter_PeekPath(t *testing.T) {
	t.Parallel()

	data := testutil.NewBuilder(t).
		Add("a.txt", []byte("a")).
		Add("b/c.txt", []byte("c")).
		Build()

	it := format.NewIter[string](openScanner(t, data), format.PeekPath)
	var got []string
	for it.Next() {
		got = append(got, it.Value())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"a.txt", "b/c.txt"}, got)

	assert.False(t, it.Next())
	assert.Empty(t, it.Value())
}

func TestIter_FullRecord(t *testing.T) {
	t.Parallel()

	it := format.NewIter[format.Entry](openScanner(t, testutil.HelloArchive()), format.FullRecord)
	require.True(t, it.Next())
	assert.Equal(t, uint32(5), it.Value().Size)
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}

func TestIter_Stop(t *testing.T) {
	t.Parallel()

	data := buildN(t, 5)
	s := openScanner(t, data)
	it := format.NewIter[string](s, format.PeekPath)

	require.True(t, it.Next())
	it.Stop()
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assert.Equal(t, 4, s.Remaining())
}

func TestIter_FailureIsTerminal(t *testing.T) {
	t.Parallel()

	calls := 0
	advance := func(*format.Scanner) (int, error) {
		calls++
		if calls == 2 {
			return 0, ipftype.ErrFormat
		}
		return calls, nil
	}

	it := format.NewIter[int](nil, advance)
	require.True(t, it.Next())
	assert.Equal(t, 1, it.Value())
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), ipftype.ErrFormat)
	assert.False(t, it.Next())
	assert.Equal(t, 2, calls)

	it.Stop()
	assert.ErrorIs(t, it.Err(), ipftype.ErrFormat)
}

func TestIter_EOFIsNotAnError(t *testing.T) {
	t.Parallel()

	it := format.NewIter[int](nil, func(*format.Scanner) (int, error) { return 0, io.EOF })
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}
