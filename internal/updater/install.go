package updater

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/llonebot/llbot-cli/internal/fsutil"
)

const (
	// packageRoot is the directory npm tarballs wrap their contents in.
	packageRoot = "package"

	maxDownloadSize = 1 << 30
	maxPrealloc     = 64 << 20
)

// Installer downloads npm tarballs and unpacks them over an install directory.
type Installer struct {
	http    *http.Client
	maxSize int64
	out     io.Writer
	logger  *slog.Logger
}

// NewInstaller creates an installer whose downloads are bounded by timeout.
func NewInstaller(timeout time.Duration, retryMax int, out io.Writer, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.HTTPClient.Timeout = timeout
	retryClient.Logger = logger

	return &Installer{
		http:    retryClient.StandardClient(),
		maxSize: maxDownloadSize,
		out:     out,
		logger:  logger,
	}
}

// Install downloads url, verifies it against checksum when one is known and
// replaces the matching entries of dir with the tarball's package contents.
func (i *Installer) Install(ctx context.Context, url, checksum, dir string) error {
	fmt.Fprintf(i.out, "Downloading: %s\n", url)
	data, err := i.download(ctx, url)
	if err != nil {
		return domain.ErrInstall{Op: "download", Err: err}
	}
	fmt.Fprintf(i.out, "Downloaded %s\n", humanize.Bytes(uint64(len(data))))

	switch err := verifyChecksum(data, checksum); {
	case errors.Is(err, errNoDigest):
		i.logger.Warn("tarball checksum not verifiable", "checksum", checksum)
	case err != nil:
		return domain.ErrInstall{Op: "verify", Err: err}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.ErrInstall{Op: "prepare", Err: err}
	}

	scratch := uuid.NewString()
	archive := filepath.Join(dir, "_download_"+scratch+".tgz")
	unpacked := filepath.Join(dir, "_extract_"+scratch)
	defer func() {
		_ = os.RemoveAll(unpacked)
		_ = os.Remove(archive)
	}()

	if err := os.WriteFile(archive, data, 0o644); err != nil {
		return domain.ErrInstall{Op: "save", Err: err}
	}

	fmt.Fprintln(i.out, "Extracting...")
	if err := extractTarGz(archive, unpacked); err != nil {
		return domain.ErrInstall{Op: "extract", Err: err}
	}
	if err := replaceEntries(filepath.Join(unpacked, packageRoot), dir); err != nil {
		return domain.ErrInstall{Op: "replace", Err: err}
	}

	fmt.Fprintln(i.out, "Extraction complete")
	return nil
}

// download reads the whole body into memory. Bodies larger than maxSize,
// declared or actual, are rejected.
func (i *Installer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := i.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
	}

	if resp.ContentLength > i.maxSize {
		return nil, fmt.Errorf("declared size %s exceeds limit %s",
			humanize.Bytes(uint64(resp.ContentLength)), humanize.Bytes(uint64(i.maxSize)))
	}

	limit := i.maxSize
	buf := &bytes.Buffer{}
	if resp.ContentLength > 0 {
		limit = resp.ContentLength
		buf.Grow(int(min(resp.ContentLength, maxPrealloc)))
	}
	n, err := buf.ReadFrom(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("body exceeds limit %s", humanize.Bytes(uint64(limit)))
	}
	return buf.Bytes(), nil
}

// extractTarGz unpacks a gzip tarball into dest, rejecting entries that
// would land outside it.
func extractTarGz(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := fsutil.WriteFile(target, tr, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(header.Linkname))
			if filepath.IsAbs(header.Linkname) || !within(dest, resolved) {
				return fmt.Errorf("tar entry %s links outside the archive", header.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		}
	}
}

// safeJoin joins name under root and fails when the result escapes root.
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", fmt.Errorf("tar entry %s escapes the archive", name)
	}
	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// replaceEntries moves every entry of src over the same name in dst.
func replaceEntries(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("archive has no %s directory", packageRoot)
		}
		return err
	}

	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())

		if err := fsutil.Move(from, to); err != nil {
			return fmt.Errorf("move %s: %w", entry.Name(), err)
		}
	}
	return nil
}
