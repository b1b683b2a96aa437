package ipf

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchive_MutationsUnsupported(t *testing.T) {
	t.Parallel()

	a := helloArchive(t)

	_, createErr := a.Create("new.txt")
	tests := []struct {
		name string
		op   string
		path string
		err  error
	}{
		{name: "create", op: "create", path: "new.txt", err: createErr},
		{name: "remove", op: "remove", path: "a.txt", err: a.Remove("a.txt")},
		{name: "rename", op: "rename", path: "a.txt", err: a.Rename("a.txt", "b.txt")},
		{name: "symlink", op: "symlink", path: "link.txt", err: a.Symlink("a.txt", "link.txt")},
		{name: "watch", op: "watch", path: ".", err: a.Watch(".")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tc.err, ErrUnsupported)
			assert.ErrorIs(t, tc.err, errors.ErrUnsupported)

			var pathErr *fs.PathError
			require.ErrorAs(t, tc.err, &pathErr)
			assert.Equal(t, tc.op, pathErr.Op)
			assert.Equal(t, tc.path, pathErr.Path)
		})
	}

	got, err := a.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}
