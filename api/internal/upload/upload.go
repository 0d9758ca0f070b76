// Package upload receives image uploads and stores them on local disk for the
// duration of a single request.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// FieldName is the multipart form field that carries the image.
const FieldName = "file"

// multipartSlack is the body allowance on top of the file limit for boundaries
// and part headers.
const multipartSlack = 64 << 10

var (
	ErrNoFile   = errors.New("no file uploaded")
	ErrTooLarge = errors.New("file too large")
)

var acceptedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var reUnsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Accepted reports whether a media type may be stored.
func Accepted(mimeType string) bool {
	return acceptedTypes[normalizeType(mimeType)]
}

// Upload is a stored file owned by exactly one request.
type Upload struct {
	OriginalName string
	StoredPath   string
	MimeType     string
	SizeBytes    int64
}

// Remove deletes the stored file. It is safe to call on a nil Upload and more than once.
func (u *Upload) Remove() error {
	if u == nil || u.StoredPath == "" {
		return nil
	}
	if err := os.Remove(u.StoredPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

type Receiver struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

func NewReceiver(dir string, maxBytes int64, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &Receiver{dir: dir, maxBytes: maxBytes, logger: logger}
}

// MaxBytes is the per-file size limit.
func (rc *Receiver) MaxBytes() int64 { return rc.maxBytes }

// Receive streams the first acceptable `file` part of a multipart request to disk.
// Parts with another field name or an unaccepted media type are drained and dropped,
// so a request carrying only such parts yields ErrNoFile.
func (rc *Receiver) Receive(w http.ResponseWriter, r *http.Request) (*Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, rc.maxBytes+multipartSlack)

	mr, err := r.MultipartReader()
	if err != nil {
		// not multipart at all: nothing was attached
		return nil, ErrNoFile
	}

	var up *Upload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = up.Remove()
			return nil, rc.classify(err)
		}

		mimeType := normalizeType(part.Header.Get("Content-Type"))
		switch {
		case up != nil, part.FormName() != FieldName, part.FileName() == "":
		case !acceptedTypes[mimeType]:
			rc.logger.Debug("upload dropped", "filename", part.FileName(), "mime", mimeType)
		default:
			up, err = rc.store(part, part.FileName(), mimeType)
			_ = part.Close()
			if err != nil {
				return nil, rc.classify(err)
			}
			continue
		}

		if _, err := io.Copy(io.Discard, part); err != nil {
			_ = up.Remove()
			return nil, rc.classify(err)
		}
		_ = part.Close()
	}

	if up == nil {
		return nil, ErrNoFile
	}
	return up, nil
}

// FromBytes stores an in-memory image under the same rules as Receive.
func (rc *Receiver) FromBytes(name, mimeType string, data []byte) (*Upload, error) {
	mimeType = normalizeType(mimeType)
	if !acceptedTypes[mimeType] || len(data) == 0 {
		return nil, ErrNoFile
	}
	if int64(len(data)) > rc.maxBytes {
		return nil, ErrTooLarge
	}
	return rc.store(bytes.NewReader(data), name, mimeType)
}

func (rc *Receiver) store(src io.Reader, name, mimeType string) (*Upload, error) {
	if err := os.MkdirAll(rc.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	stored := filepath.Join(rc.dir, uuid.NewString()+"-"+sanitizeName(name))
	f, err := os.OpenFile(stored, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	up := &Upload{OriginalName: name, StoredPath: stored, MimeType: mimeType}
	n, err := io.Copy(f, io.LimitReader(src, rc.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = up.Remove()
		return nil, fmt.Errorf("write upload file: %w", err)
	}
	if n > rc.maxBytes {
		_ = up.Remove()
		return nil, ErrTooLarge
	}
	up.SizeBytes = n

	rc.logger.Debug("upload stored", "filename", name, "path", stored, "mime", mimeType, "size", n)
	return up, nil
}

func (rc *Receiver) classify(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) || errors.Is(err, ErrTooLarge) {
		return ErrTooLarge
	}
	return err
}

func normalizeType(v string) string {
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}

func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = reUnsafeName.ReplaceAllString(base, "_")
	base = strings.Trim(base, ".")
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	if base == "" {
		return "upload"
	}
	return base
}
