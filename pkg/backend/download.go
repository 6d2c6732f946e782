package backend

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/seqport/sracatch/pkg/accession"
)

// progressInterval is how many bytes pass between progress callbacks.
const progressInterval int64 = 100 << 20 // 100MB

// progressReader wraps an io.Reader and reports cumulative bytes via a
// callback at progressInterval boundaries, plus once at stream end.
type progressReader struct {
	r          io.Reader
	total      int64
	onProgress func(written, total int64)
	written    int64
	lastReport int64
}

func newProgressReader(r io.Reader, total int64, cb func(written, total int64)) io.Reader {
	if cb == nil {
		return r
	}
	return &progressReader{r: r, total: total, onProgress: cb}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.written += int64(n)
		pr.lastReport += int64(n)
		if pr.lastReport >= progressInterval {
			pr.onProgress(pr.written, pr.total)
			pr.lastReport = 0
		}
	}
	if err == io.EOF && pr.written > 0 && pr.lastReport > 0 {
		pr.onProgress(pr.written, pr.total)
		pr.lastReport = 0
	}
	return n, err
}

// expectation carries the integrity checks for a downloaded file. Zero
// values disable the corresponding check.
type expectation struct {
	MD5   string
	Bytes int64
}

// verify checks a fully written file against the expectation.
func (e expectation) verify(path string) error {
	if e.Bytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() != e.Bytes {
			return fmt.Errorf("%w: size mismatch for %s: got %d want %d", ErrExecution, path, info.Size(), e.Bytes)
		}
	}
	if e.MD5 != "" {
		sum, err := fileMD5(path)
		if err != nil {
			return err
		}
		if !strings.EqualFold(sum, e.MD5) {
			return fmt.Errorf("%w: checksum mismatch for %s: got %s want %s", ErrExecution, path, sum, e.MD5)
		}
	}
	return nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// fetchURL downloads url to dest under the temp-file discipline: bytes
// land at dest plus the temp suffix and move to dest only after the
// status, size, and checksum all pass. On any failure the temp file is
// removed and dest is untouched.
func fetchURL(ctx context.Context, client *http.Client, url, dest string, want expectation, onProgress func(written, total int64)) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request for %s: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: GET %s: %w", ErrExecution, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: GET %s: status %d", ErrExecution, url, resp.StatusCode)
	}

	total := want.Bytes
	if total <= 0 {
		total = resp.ContentLength
	}

	tmp := accession.TempPath(dest)
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}

	hash := md5.New()
	src := newProgressReader(io.TeeReader(resp.Body, hash), total, onProgress)

	written, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	err = copyErr
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: download %s: %w", ErrExecution, url, err)
	}

	if want.Bytes > 0 && written != want.Bytes {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: size mismatch for %s: got %d want %d", ErrExecution, dest, written, want.Bytes)
	}
	if want.MD5 != "" {
		sum := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(sum, want.MD5) {
			_ = os.Remove(tmp)
			return 0, fmt.Errorf("%w: checksum mismatch for %s: got %s want %s", ErrExecution, dest, sum, want.MD5)
		}
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("promote %s: %w", tmp, err)
	}
	return written, nil
}

// removePaths deletes the given files, ignoring errors. Used to undo a
// multi-file download when a later file fails so no partial set remains
// at paths an existence check would accept.
func removePaths(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
