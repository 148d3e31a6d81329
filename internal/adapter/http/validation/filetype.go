// Package validation provides upload validation utilities: filename
// sanitization and content sniffing for the video formats the transcoder can
// actually handle.
package validation

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

// allowedMIMETypes is the allowlist of source video MIME types accepted for
// transcoding.
var allowedMIMETypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-matroska": true,
	"video/x-msvideo":  true,
	"video/mpeg":       true,
}

// sniffLen is the number of bytes read for content type detection.
const sniffLen = 512

// SniffVideo detects the MIME type from the reader's leading bytes and
// reports whether it is an accepted video format. The reader is rewound to
// the start afterwards.
func SniffVideo(reader io.ReadSeeker) (mime string, allowed bool, err error) {
	buf := make([]byte, sniffLen)
	n, err := reader.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return "", false, err
	}
	if n == 0 {
		return "application/octet-stream", false, nil
	}
	buf = buf[:n]

	mime = detectContainer(buf)
	if mime == "" {
		mime = http.DetectContentType(buf)
	}
	return mime, allowedMIMETypes[mime], nil
}

// detectContainer recognizes video containers http.DetectContentType handles
// poorly. MP4-family files carry "ftyp" at offset 4; Matroska and WebM share
// an EBML header.
func detectContainer(buf []byte) string {
	if len(buf) >= 12 && bytes.Equal(buf[4:8], []byte("ftyp")) {
		brand := string(buf[8:12])
		if brand == "qt  " {
			return "video/quicktime"
		}
		return "video/mp4"
	}
	if len(buf) >= 4 && bytes.Equal(buf[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		if bytes.Contains(buf, []byte("webm")) {
			return "video/webm"
		}
		return "video/x-matroska"
	}
	return ""
}
