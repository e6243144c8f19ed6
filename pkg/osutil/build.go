package osutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// BuildCtxSpec places the file at PathTo into a build context under FileName.
type BuildCtxSpec struct {
	FileName string
	PathTo   string
	Mode     int64
}

// BuildGo compiles the package mod into a static binary at dest.
func BuildGo(ctx context.Context, dest, mod string) error {
	cmd := exec.CommandContext(ctx, "go", "build", "-o", dest, mod)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("error to build %s with output %s and error: %w", mod, out, err)
	}
	return nil
}

// BuildCtx archives the given files into a gzipped tarball suitable as a
// Docker image build context.
func BuildCtx(specs ...BuildCtxSpec) (io.Reader, error) {
	if len(specs) < 1 {
		return nil, fmt.Errorf("cannot build context with no context specification")
	}

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	for _, s := range specs {
		if err := FileToTar(s.FileName, s.PathTo, s.Mode, tw); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("error to build context: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("error to compress context: %w", err)
	}

	return &buf, nil
}

// FileToTar writes the file at filePath into tw as name with the given mode.
func FileToTar(name, filePath string, mode int64, tw *tar.Writer) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("error to open file %s: %w", filePath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("error to get info on file %s: %w", filePath, err)
	}

	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return fmt.Errorf("error to create headers for file %s: %w", filePath, err)
	}
	hdr.Name = name
	hdr.Mode = mode

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("error to write headers for file %s: %w", filePath, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("error to archive file %s: %w", filePath, err)
	}

	return nil
}
