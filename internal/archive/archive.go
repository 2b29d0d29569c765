// Package archive builds the downloadable ZIP bundle of a job's output
// files. Archives are built lazily, cached on disk and rebuilt when any
// source file is newer than the cached archive.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"clipd/internal/logger"
)

// archiveName is the cached bundle's filename inside the job directory.
const archiveName = "clips.zip"

// storedExtensions hold already-compressed media; recompressing them
// wastes CPU for no size win.
var storedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".m4a":  true,
	".webm": true,
	".mkv":  true,
}

// Builder produces job archives. Concurrent requests for the same job
// share one build via singleflight.
type Builder struct {
	group singleflight.Group
}

// NewBuilder returns a ready Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build returns the path of an up-to-date archive of every clip_* file in
// jobDir, creating or refreshing it as needed.
func (b *Builder) Build(jobDir string) (string, error) {
	path, err, _ := b.group.Do(jobDir, func() (any, error) {
		return buildLocked(jobDir)
	})
	if err != nil {
		return "", err
	}
	return path.(string), nil
}

func buildLocked(jobDir string) (string, error) {
	files, err := outputFiles(jobDir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no output files to archive")
	}

	target := filepath.Join(jobDir, archiveName)
	if fresh(target, files) {
		return target, nil
	}

	start := time.Now()
	tmp, err := os.CreateTemp(jobDir, ".clips-*.zip")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if err := writeZip(tmp, files); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", err
	}
	logger.Debug("archive built", "dir", jobDir, "files", len(files), "took", time.Since(start))
	return target, nil
}

// outputFiles lists the job's clip artifacts, sorted for a stable archive
// layout.
func outputFiles(jobDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(jobDir, "clip_*"))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// fresh reports whether the cached archive is newer than every source
// file.
func fresh(target string, files []string) bool {
	info, err := os.Stat(target)
	if err != nil {
		return false
	}
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil || fi.ModTime().After(info.ModTime()) {
			return false
		}
	}
	return true
}

func writeZip(w io.Writer, files []string) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		method := zip.Deflate
		if storedExtensions[strings.ToLower(filepath.Ext(f))] {
			method = zip.Store
		}

		info, err := os.Stat(f)
		if err != nil {
			return err
		}
		hdr := &zip.FileHeader{
			Name:     filepath.Base(f),
			Method:   method,
			Modified: info.ModTime(),
		}
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		in, err := os.Open(f)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, in)
		in.Close()
		if err != nil {
			return err
		}
	}
	return zw.Close()
}
