package vision

import (
	"fmt"
	"io"
	"strings"
)

// MaxPhotoBytes is the client-side photo size limit, checked before the
// image is ever sent anywhere.
const MaxPhotoBytes int64 = 10 << 20 // 10 MiB

// allowedPhotoTypes is the strict allowlist for report photos. Unlike a
// permissive image/* check this excludes SVG and other scriptable formats.
var allowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// magicHeaders maps accepted content types to their file magic bytes.
var magicHeaders = map[string][]byte{
	"image/jpeg": {0xFF, 0xD8, 0xFF},
	"image/png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
}

// CheckPhoto validates a photo's declared content type and size before
// analysis or upload. Violations are *Failure values: UNSUPPORTED_MIME_TYPE
// or MAX_FILE_SIZE_ERROR. Unlike analysis failures these block photo
// acceptance.
func CheckPhoto(contentType string, size int64) error {
	ct := normalizeContentType(contentType)
	if !allowedPhotoTypes[ct] {
		return &Failure{Reason: UnsupportedMIMEType, Detail: contentType}
	}
	if size > MaxPhotoBytes {
		return &Failure{
			Reason: MaxFileSize,
			Detail: fmt.Sprintf("%d bytes exceeds %d byte limit", size, MaxPhotoBytes),
		}
	}
	return nil
}

// CheckPhotoMagic reads the first bytes of the photo and verifies they match
// the declared content type's signature. The returned reader replays the
// peeked bytes before continuing with the rest of the original stream.
func CheckPhotoMagic(r io.Reader, declaredType string) (io.Reader, error) {
	ct := normalizeContentType(declaredType)
	expected, ok := magicHeaders[ct]
	if !ok {
		return nil, &Failure{Reason: UnsupportedMIMEType, Detail: declaredType}
	}

	header := make([]byte, len(expected))
	n, err := io.ReadFull(r, header)
	if err != nil {
		return nil, &Failure{Reason: UnsupportedMIMEType, Detail: "file too short to identify"}
	}
	for i := 0; i < n; i++ {
		if header[i] != expected[i] {
			return nil, &Failure{
				Reason: UnsupportedMIMEType,
				Detail: fmt.Sprintf("content does not match declared type %s", ct),
			}
		}
	}
	return io.MultiReader(strings.NewReader(string(header[:n])), r), nil
}

func normalizeContentType(contentType string) string {
	ct := strings.TrimSpace(strings.ToLower(contentType))
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}
	return ct
}
