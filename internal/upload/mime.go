package upload

import "strings"

// defaultExtension is the safe container extension used for MIME types the
// mapping does not recognize.
const defaultExtension = ".webm"

var extensionByMime = map[string]string{
	"video/webm": ".webm",
	"audio/webm": ".weba",
	"video/mp4":  ".mp4",
	"audio/mp4":  ".m4a",
	"video/ogg":  ".ogv",
	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
}

var mimeByExtension = map[string]string{
	".webm": "video/webm",
	".weba": "audio/webm",
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
	".ogv":  "video/ogg",
	".ogg":  "audio/ogg",
	".mp3":  "audio/mpeg",
}

// probeExtensions is the closed set of extensions tried when recovering a
// staging file after a restart. Order puts the common containers first.
var probeExtensions = []string{".webm", ".weba", ".mp4", ".m4a", ".ogv", ".ogg", ".mp3"}

// extensionForMime maps a declared MIME type to a file extension. Codec
// parameters ("video/webm;codecs=vp9") are ignored.
func extensionForMime(mimeType string) string {
	base := mimeType
	if idx := strings.IndexByte(base, ';'); idx >= 0 {
		base = base[:idx]
	}
	base = strings.ToLower(strings.TrimSpace(base))

	if ext, ok := extensionByMime[base]; ok {
		return ext
	}
	return defaultExtension
}

// mimeForExtension recovers the MIME type for a staging file found by the
// restart probe.
func mimeForExtension(ext string) string {
	if mime, ok := mimeByExtension[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}
