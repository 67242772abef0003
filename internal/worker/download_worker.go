package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/veranemoloko/index-mirror/internal/domain"
	errpkg "github.com/veranemoloko/index-mirror/internal/errors"
	"github.com/veranemoloko/index-mirror/internal/storage"
)

// ProgressSink receives byte-level progress for one transfer.
type ProgressSink interface {
	Start(name string, total int64)
	Add(n int64)
	Done()
}

type noopSink struct{}

func (noopSink) Start(string, int64) {}
func (noopSink) Add(int64)           {}
func (noopSink) Done()               {}

// Result describes a completed transfer.
type Result struct {
	FinalFile string
	Bytes     int64
	Resumed   bool
}

// DownloadWorker streams records into FileStorage.
type DownloadWorker struct {
	fileStorage *storage.FileStorage
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewDownloadWorker creates a new DownloadWorker with the provided FileStorage and logger.
// A zero timeout leaves transfers unbounded.
func NewDownloadWorker(fileStorage *storage.FileStorage, timeout time.Duration, logger *slog.Logger) *DownloadWorker {
	return &DownloadWorker{
		fileStorage: fileStorage,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Download fetches rec.URL into {out}/{name}.{ext}. Data is streamed into a
// part file which is only renamed into place once fully written, so the final
// path exists only for complete downloads. An existing part file is resumed
// with a Range request when the server supports it.
func (w *DownloadWorker) Download(ctx context.Context, rec domain.Record, sink ProgressSink) (Result, error) {
	if sink == nil {
		sink = noopSink{}
	}
	defer sink.Done()

	finalPath, err := w.fileStorage.Path(rec.Name, rec.Ext)
	if err != nil {
		return Result{}, err
	}
	result := Result{FinalFile: finalPath}

	part := storage.NewPart(finalPath, rec.URL)
	existingSize := part.Size()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.URL, nil)
	if err != nil {
		return result, fmt.Errorf("create request: %w", err)
	}

	if existingSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existingSize))
		if v := part.Validator(); v != "" {
			req.Header.Set("If-Range", v)
		}
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && existingSize > 0 {
		part.Remove()
		return result, fmt.Errorf("%w: %s for stale part file, discarded", errpkg.ErrBadStatus, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("%w: %s", errpkg.ErrBadStatus, resp.Status)
	}

	if resp.StatusCode == http.StatusPartialContent {
		start, ok := contentRangeStart(resp.Header.Get("Content-Range"))
		if existingSize == 0 || !ok || start != existingSize {
			part.Remove()
			return result, fmt.Errorf("%w: content range %q does not continue part file at %d",
				errpkg.ErrBadStatus, resp.Header.Get("Content-Range"), existingSize)
		}
	} else {
		existingSize = 0
	}
	result.Resumed = existingSize > 0

	if !result.Resumed {
		if err := part.SetValidator(resumeValidator(resp.Header)); err != nil {
			return result, err
		}
	}

	total := resp.ContentLength
	if total >= 0 {
		total += existingSize
	}
	sink.Start(rec.Name, total)

	file, err := part.Open(result.Resumed)
	if err != nil {
		return result, fmt.Errorf("open part file: %w", err)
	}

	bytesRead, err := w.copyWithContext(ctx, file, resp.Body, sink)
	if err != nil {
		file.Close()
		return result, fmt.Errorf("copy data: %w", err)
	}
	if resp.ContentLength >= 0 && bytesRead != resp.ContentLength {
		file.Close()
		return result, fmt.Errorf("copy data: %w", io.ErrUnexpectedEOF)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return result, fmt.Errorf("sync part file: %w", err)
	}
	if err := file.Close(); err != nil {
		return result, fmt.Errorf("close part file: %w", err)
	}

	if err := part.Commit(); err != nil {
		return result, err
	}

	result.Bytes = existingSize + bytesRead
	w.logger.Debug("file downloaded successfully", "url", rec.URL, "bytes", result.Bytes, "file_path", finalPath, "resumed", result.Resumed)
	return result, nil
}

// resumeValidator picks the If-Range value for a later resume. Weak ETags
// are not allowed in If-Range, so Last-Modified is used instead.
func resumeValidator(h http.Header) string {
	if etag := h.Get("ETag"); etag != "" && !strings.HasPrefix(etag, "W/") {
		return etag
	}
	return h.Get("Last-Modified")
}

// contentRangeStart parses the first byte position of "bytes start-end/size".
func contentRangeStart(v string) (int64, bool) {
	rest, ok := strings.CutPrefix(v, "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}

func (w *DownloadWorker) copyWithContext(ctx context.Context, dst *os.File, src io.Reader, sink ProgressSink) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
			nr, err := src.Read(buf)
			if nr > 0 {
				nw, err := dst.Write(buf[0:nr])
				if nw > 0 {
					total += int64(nw)
					sink.Add(int64(nw))
				}
				if err != nil {
					return total, err
				}
				if nr != nw {
					return total, io.ErrShortWrite
				}
			}
			if err != nil {
				if err == io.EOF {
					return total, nil
				}
				return total, err
			}
		}
	}
}
