package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtensionForMime(t *testing.T) {
	tests := []struct {
		mimeType string
		expected string
	}{
		{"video/webm", ".webm"},
		{"video/webm;codecs=vp9,opus", ".webm"},
		{"audio/webm", ".weba"},
		{"VIDEO/MP4", ".mp4"},
		{" audio/ogg ", ".ogg"},
		{"application/x-unknown", ".webm"},
		{"", ".webm"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, extensionForMime(tt.mimeType), "mime %q", tt.mimeType)
	}
}

func TestMimeForExtension(t *testing.T) {
	assert.Equal(t, "video/webm", mimeForExtension(".webm"))
	assert.Equal(t, "audio/mp4", mimeForExtension(".m4a"))
	assert.Equal(t, "application/octet-stream", mimeForExtension(".xyz"))
}

func TestProbeExtensionsCoverMapping(t *testing.T) {
	// Every extension the mapping can produce must be reachable by the
	// restart-recovery probe.
	probed := make(map[string]bool, len(probeExtensions))
	for _, ext := range probeExtensions {
		probed[ext] = true
	}
	for _, ext := range extensionByMime {
		assert.True(t, probed[ext], "extension %s missing from probe set", ext)
	}
	assert.True(t, probed[defaultExtension])
}
