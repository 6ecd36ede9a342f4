package attachments

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repl-toolkit/actions"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDetectMediaType(t *testing.T) {
	tests := map[string][]byte{
		"image/png":  pngBytes,
		"image/jpeg": []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01"),
		"image/gif":  []byte("GIF89a\x01\x00\x01\x00\x00\x00"),
		"image/webp": []byte("RIFF\x00\x00\x00\x00WEBPVP8 "),
		"image/bmp":  []byte("BM\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"),
		"":           []byte("plain text, not an image"),
	}
	for want, data := range tests {
		assert.Equal(t, want, DetectMediaType(data))
	}
	assert.Equal(t, "", DetectMediaType(pngBytes[:4]))
}

func TestParse(t *testing.T) {
	p := Parse("Look at {{image:img_002}} and {{image:img_001}}{{image:img_002}}")
	assert.Equal(t, []Part{
		{Text: "Look at "},
		{ImageID: "img_002"},
		{Text: " and "},
		{ImageID: "img_001"},
		{ImageID: "img_002"},
	}, p.Parts)
	assert.Equal(t, []string{"img_001", "img_002"}, p.ImageIDs)

	assert.Equal(t, []Part{{Text: "no images"}}, Parse("no images").Parts)
	assert.Empty(t, Parse("").Parts)
}

func TestReconstruct(t *testing.T) {
	images := map[string]Image{"img_001": {Data: pngBytes, MediaType: "image/png"}}
	out := Reconstruct("see {{image:img_001}} and {{image:img_009}}", images, func(text string, img *Image) string {
		switch {
		case img != nil:
			return "![" + img.MediaType + "]"
		case text == "":
			return "[missing]"
		default:
			return text
		}
	})
	assert.Equal(t, "see ![image/png] and [missing]", out)
}

func TestStore(t *testing.T) {
	s := NewStore()

	id, err := s.Add(pngBytes, "")
	require.NoError(t, err)
	assert.Equal(t, "img_001", id)

	_, err = s.Add([]byte("not an image at all"), "")
	assert.ErrorIs(t, err, ErrUnknownMediaType)

	id2, err := s.Add([]byte("anything"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "img_002", id2)
	assert.Equal(t, 2, s.Len())

	refs := s.Referenced("a " + Placeholder(id) + " b {{image:img_404}}")
	require.Len(t, refs, 1)
	assert.Equal(t, "image/png", refs[id].MediaType)
	assert.Nil(t, s.Referenced("nothing"))

	s.Clear()
	assert.Equal(t, 0, s.Len())
	id3, err := s.Add(pngBytes, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "img_003", id3)
}

func TestAttachAction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(path, pngBytes, 0644))

	store := NewStore()
	r := actions.NewRegistry()
	require.NoError(t, r.Register(NewAttachAction(store, r.Prefix())))

	var inserted, printed []string
	inv := actions.Invocation{
		Printer: func(s string) { printed = append(printed, s) },
		Insert:  func(s string) { inserted = append(inserted, s) },
	}
	_, status := r.HandleCommand(context.Background(), "/attach "+path, inv)
	require.Equal(t, actions.StatusExecuted, status)
	assert.Equal(t, []string{" {{image:img_001}}"}, inserted)
	assert.True(t, strings.HasPrefix(printed[0], "Attached"))
	assert.Equal(t, []string{"img_001: image/png, 16 bytes"}, Describe(store, inserted[0]))

	_, status = r.HandleCommand(context.Background(), "/attach", inv)
	assert.Equal(t, actions.StatusFailed, status)
	_, status = r.HandleCommand(context.Background(), "/attach "+filepath.Join(dir, "missing.png"), inv)
	assert.Equal(t, actions.StatusFailed, status)
}
