package util

import (
	"net/http"
	"strings"
)

var (
	magicJPEG = []byte{0xFF, 0xD8}
	magicPNG  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
)

func hasPrefix(b, magic []byte) bool {
	if len(b) < len(magic) {
		return false
	}
	for i := range magic {
		if b[i] != magic[i] {
			return false
		}
	}
	return true
}

// SniffMimeHTTP detects jpeg/png by magic bytes.
func SniffMimeHTTP(b []byte) string {
	switch {
	case hasPrefix(b, magicJPEG):
		return "image/jpeg"
	case hasPrefix(b, magicPNG):
		return "image/png"
	}
	return "application/octet-stream"
}

// PickMIME prefers the declared type, then magic bytes, then net/http sniffing.
func PickMIME(declared string, data []byte) string {
	if d := strings.TrimSpace(declared); d != "" {
		return d
	}
	if m := SniffMimeHTTP(data); m != "application/octet-stream" {
		return m
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "image/jpeg"
}
