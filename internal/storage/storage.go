// Package storage puts uploaded documents, inspection photos and signatures
// into a blob store and hands back the URL that the booking draft keeps.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// BlobStore uploads one object and returns the URL it can be read from.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// ErrUnsupportedType is returned for payloads that are neither an image
// nor a PDF.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrEmpty is returned for zero-length payloads.
var ErrEmpty = errors.New("empty file")

// accepted maps sniffed content types onto file extensions.
var accepted = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/gif":       "gif",
	"application/pdf": "pdf",
}

// Sniff detects the content type of data and returns it with the file
// extension used in object keys.
func Sniff(data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", ErrEmpty
	}
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ext, ok := accepted[ct]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}
	return ct, ext, nil
}

// ObjectKey builds "<owner>/<unix-ms>-<label>.<ext>" where spaces in the
// label become dashes, e.g. "b-1/1717232400000-Front-exterior.jpg".
func ObjectKey(owner, label, ext string, now time.Time) string {
	label = strings.TrimSpace(label)
	label = strings.NewReplacer(" ", "-", "/", "-", "\\", "-").Replace(label)
	if label == "" {
		label = "file"
	}
	return fmt.Sprintf("%s/%d-%s.%s", owner, now.UnixMilli(), label, ext)
}

// DecodeDataURL decodes a base64 data URL such as the PNG a signature pad
// produces ("data:image/png;base64,...").
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, "", errors.New("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("malformed data url")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", errors.New("data url must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data url: %w", err)
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}
	return data, mediaType, nil
}

// reader adapts a byte slice to the io.Reader the SDKs want.
func reader(data []byte) *bytes.Reader { return bytes.NewReader(data) }
