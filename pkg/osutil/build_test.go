package osutil

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCtx(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "server")
	dockerfile := filepath.Join(dir, "Dockerfile")
	require.NoError(t, os.WriteFile(bin, []byte("binary"), 0o700))
	require.NoError(t, os.WriteFile(dockerfile, []byte("FROM scratch\n"), 0o600))

	r, err := BuildCtx(
		BuildCtxSpec{FileName: "app", PathTo: bin, Mode: 0555},
		BuildCtxSpec{FileName: "Dockerfile", PathTo: dockerfile, Mode: 0444},
	)
	require.NoError(t, err)

	gzr, err := gzip.NewReader(r)
	require.NoError(t, err)
	tr := tar.NewReader(gzr)

	got := map[string]string{}
	modes := map[string]int64{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[hdr.Name] = string(b)
		modes[hdr.Name] = hdr.Mode
	}

	assert.Equal(t, map[string]string{"app": "binary", "Dockerfile": "FROM scratch\n"}, got)
	assert.Equal(t, int64(0555), modes["app"])
	assert.Equal(t, int64(0444), modes["Dockerfile"])
}

func TestBuildCtxErrors(t *testing.T) {
	_, err := BuildCtx()
	require.Error(t, err)

	_, err = BuildCtx(BuildCtxSpec{FileName: "app", PathTo: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error to open file")
}
