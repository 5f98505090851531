package validation

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/username/folioledger/backend/src/logger"
)

// AllowedClientContentTypes lists the client-declared MIME types accepted for broker exports.
var AllowedClientContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true, // Windows browsers label .csv this way
	"text/plain":               true,
	"application/octet-stream": false,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": false,
}

// ValidateClientContentType checks the Content-Type header of the uploaded part.
func ValidateClientContentType(contentType string) error {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if allowed, exists := AllowedClientContentTypes[mediaType]; !exists || !allowed {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("%w: client-declared file type '%s' is not allowed for CSV upload", ErrValidationFailed, contentType)
	}
	return nil
}

func isBinaryContent(buf []byte) bool {
	return bytes.IndexByte(buf, 0) != -1 || !utf8.Valid(trimPartialRune(buf))
}

// trimPartialRune drops a multi-byte rune cut by the sniff buffer.
func trimPartialRune(buf []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(buf) > 0; i++ {
		r, size := utf8.DecodeLastRune(buf)
		if r != utf8.RuneError || size > 1 {
			return buf
		}
		buf = buf[:len(buf)-1]
	}
	return buf
}

// ValidateFileContentByMagicBytes sniffs the first KB and rewinds the reader.
func ValidateFileContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("%w: file is nil", ErrValidationFailed)
	}

	buffer := make([]byte, 1024)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: file is empty", ErrValidationFailed)
	}

	if isBinaryContent(buffer[:n]) {
		logger.L.Warn("File rejected: Binary content detected in text upload")
		return "application/octet-stream", fmt.Errorf("%w: file appears to be binary, not CSV", ErrValidationFailed)
	}

	detected := strings.ToLower(strings.Split(http.DetectContentType(buffer[:n]), ";")[0])
	switch detected {
	case "text/plain", "text/csv", "application/csv":
		logger.L.Debug("File content type validated", "detectedContentType", detected)
		return detected, nil
	}
	logger.L.Warn("Disallowed detected file content type", "detectedContentType", detected)
	return detected, fmt.Errorf("%w: detected file content type '%s' is not allowed", ErrValidationFailed, detected)
}
