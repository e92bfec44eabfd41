// Package source normalizes the ways an image can enter tracekit into one
// [File] value.
//
// Three surfaces produce files:
//   - a path argument or stdin pipe on the command line ([FromPath], [FromReader])
//   - an HTTP file-selection upload ([FromMultipart])
//   - an HTTP drop notification carrying several files, of which only the
//     first is used ([First])
//
// A File is immutable. Its bytes are read once by the decoder; nothing here
// keeps a handle open.
package source

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/tracekit/pkg/errors"
)

// MaxSize is the largest input accepted from a stream without a known length.
const MaxSize = 64 << 20

// File is a user-supplied image reference.
type File struct {
	Name      string // display name, never a path
	MediaType string // declared media type without parameters
	Size      int64  // byte length

	open func() (io.ReadCloser, error)
}

// Open returns a reader over the file bytes.
func (f *File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("source %s has no content", f.Name)
	}
	return f.open()
}

// IsImage reports whether the declared media type is an image type.
func (f *File) IsImage() bool {
	return strings.HasPrefix(f.MediaType, "image/")
}

// IsTIFF reports whether the media type or name extension indicates TIFF.
func (f *File) IsTIFF() bool {
	if f.MediaType == "image/tiff" || f.MediaType == "image/tiff-fx" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	return ext == ".tif" || ext == ".tiff"
}

// BaseName returns the display name with its extension stripped.
// An empty or extension-only name yields "image".
func (f *File) BaseName() string {
	base := strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
	if base == "" {
		return "image"
	}
	return base
}

// New returns a File over an in-memory buffer.
func New(name, mediaType string, data []byte) *File {
	return &File{
		Name:      filepath.Base(name),
		MediaType: normalizeType(mediaType),
		Size:      int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// FromOpener returns a File whose bytes come from open.
func FromOpener(name, mediaType string, size int64, open func() (io.ReadCloser, error)) *File {
	return &File{
		Name:      filepath.Base(name),
		MediaType: normalizeType(mediaType),
		Size:      size,
		open:      open,
	}
}

// FromPath returns a File for a local path. The media type is taken from the
// extension and falls back to content sniffing.
func FromPath(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReadError, err, "cannot access %s", path)
	}
	if info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s is a directory", path)
	}

	mediaType := typeByExtension(path)
	if mediaType == "" {
		mediaType, err = sniffFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeReadError, err, "cannot read %s", path)
		}
	}

	return &File{
		Name:      filepath.Base(path),
		MediaType: mediaType,
		Size:      info.Size(),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FromReader buffers r (up to MaxSize) and sniffs its media type.
// The name is used for display and extension lookup only.
func FromReader(name string, r io.Reader) (*File, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReadError, err, "read %s", name)
	}
	if len(data) > MaxSize {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s exceeds %d bytes", name, MaxSize)
	}

	mediaType := typeByExtension(name)
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return New(name, mediaType, data), nil
}

// FromMultipart returns a File for an uploaded form part. The declared
// Content-Type header wins; a missing header falls back to the extension.
func FromMultipart(fh *multipart.FileHeader) *File {
	mediaType := fh.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		if byExt := typeByExtension(fh.Filename); byExt != "" {
			mediaType = byExt
		}
	}
	return &File{
		Name:      filepath.Base(fh.Filename),
		MediaType: normalizeType(mediaType),
		Size:      fh.Size,
		open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// First returns the first file of a selection and how many were ignored.
// Batch conversion is not supported.
func First(files []*File) (*File, int, error) {
	if len(files) == 0 {
		return nil, 0, errors.New(errors.ErrCodeInvalidInput, "no file provided")
	}
	return files[0], len(files) - 1, nil
}

// Validate rejects files whose declared media type is not an image type.
func Validate(f *File) error {
	if f == nil {
		return errors.New(errors.ErrCodeInvalidInput, "no file provided")
	}
	if !f.IsImage() {
		mediaType := f.MediaType
		if mediaType == "" {
			mediaType = "unknown type"
		}
		return errors.New(errors.ErrCodeInputRejected, "%s is not an image (%s)", f.Name, mediaType)
	}
	return nil
}

// extensionTypes covers image extensions missing from Go's builtin table.
var extensionTypes = map[string]string{
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".gif":  "image/gif",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

func typeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return normalizeType(mime.TypeByExtension(ext))
}

func sniffFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return normalizeType(http.DetectContentType(buf[:n])), nil
}

// normalizeType strips parameters and lowercases a media type.
func normalizeType(mediaType string) string {
	if mediaType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
