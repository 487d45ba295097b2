package media

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockbook/internal/testutil"
)

func TestSave_NamesFileByKindAndID(t *testing.T) {
	ids := &testutil.SequentialIDs{}
	s := &Store{Dir: filepath.Join(t.TempDir(), "media"), NewID: ids.Next}

	path, err := s.Save(KindProduct, ".PNG", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(s.Dir, "product_00000000-0000-7000-8000-000000000001.png"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestSave_DefaultIDsAreUnique(t *testing.T) {
	s := &Store{Dir: t.TempDir()}

	a, err := s.Save(KindProfile, "jpg", []byte("a"))
	require.NoError(t, err)
	b, err := s.Save(KindProfile, "jpg", []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSave_Rejects(t *testing.T) {
	s := &Store{Dir: t.TempDir()}

	_, err := s.Save(KindProduct, "gif", []byte("x"))
	assert.True(t, errors.Is(err, ErrUnsupportedExtension))

	_, err = s.Save(KindProduct, "png", nil)
	assert.Error(t, err)
}

func TestImport(t *testing.T) {
	src := filepath.Join(t.TempDir(), "photo.webp")
	require.NoError(t, os.WriteFile(src, []byte("riff"), 0o644))

	s := &Store{Dir: t.TempDir(), NewID: testutil.FixedID("abc")}
	path, err := s.Import(KindProfile, src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir, "profile_abc.webp"), path)
}

func TestRemove(t *testing.T) {
	s := &Store{Dir: t.TempDir()}
	path, err := s.Save(KindProduct, "png", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(path))
	assert.NoFileExists(t, path)
	assert.NoError(t, s.Remove(path), "second remove is a no-op")

	outside := filepath.Join(t.TempDir(), "elsewhere.png")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))
	assert.Error(t, s.Remove(outside))
	assert.FileExists(t, outside)
}
