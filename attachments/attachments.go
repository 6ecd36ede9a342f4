// Package attachments holds binary content referenced from input text by
// {{image:<id>}} placeholders.
package attachments

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"repl-toolkit/backend"
)

// ErrUnknownMediaType is returned when content is not a recognized image format.
var ErrUnknownMediaType = errors.New("unrecognized media type")

var placeholderPattern = regexp.MustCompile(`\{\{image:(\w+)\}\}`)

// Image is one stored attachment.
type Image struct {
	Data      []byte
	MediaType string
	Timestamp time.Time
}

// DetectMediaType recognizes common image formats by their magic bytes.
func DetectMediaType(data []byte) string {
	if len(data) < 12 {
		return ""
	}
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	default:
		return ""
	}
}

// Placeholder returns the reference text for id.
func Placeholder(id string) string {
	return "{{image:" + id + "}}"
}

// Part is a run of text or a single image reference.
type Part struct {
	Text    string
	ImageID string
}

// IsImage reports whether the part is an image reference.
func (p Part) IsImage() bool {
	return p.ImageID != ""
}

// Parsed is text split around its image references.
type Parsed struct {
	Text  string
	Parts []Part
	// ImageIDs lists each referenced id once, sorted.
	ImageIDs []string
}

// Parse splits text into text and image parts in order.
func Parse(text string) Parsed {
	parsed := Parsed{Text: text}
	seen := make(map[string]bool)
	last := 0
	for _, m := range placeholderPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			parsed.Parts = append(parsed.Parts, Part{Text: text[last:m[0]]})
		}
		id := text[m[2]:m[3]]
		parsed.Parts = append(parsed.Parts, Part{ImageID: id})
		if !seen[id] {
			seen[id] = true
			parsed.ImageIDs = append(parsed.ImageIDs, id)
		}
		last = m[1]
	}
	if last < len(text) {
		parsed.Parts = append(parsed.Parts, Part{Text: text[last:]})
	}
	sort.Strings(parsed.ImageIDs)
	return parsed
}

// Reconstruct rebuilds text by passing every part through format. Image parts whose
// id is not in images are passed with a nil image.
func Reconstruct(text string, images map[string]Image, format func(text string, img *Image) string) string {
	var sb strings.Builder
	for _, p := range Parse(text).Parts {
		if !p.IsImage() {
			sb.WriteString(format(p.Text, nil))
			continue
		}
		if img, ok := images[p.ImageID]; ok {
			sb.WriteString(format("", &img))
		} else {
			sb.WriteString(format("", nil))
		}
	}
	return sb.String()
}

// Store keeps the attachments of the input being composed.
type Store struct {
	mu     sync.Mutex
	next   int
	images map[string]Image
	now    func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{images: make(map[string]Image), now: time.Now}
}

// Add stores data and returns its id. An empty mediaType is detected from the data.
func (s *Store) Add(data []byte, mediaType string) (string, error) {
	if mediaType == "" {
		mediaType = DetectMediaType(data)
	}
	if mediaType == "" {
		return "", ErrUnknownMediaType
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("img_%03d", s.next)
	s.images[id] = Image{Data: append([]byte(nil), data...), MediaType: mediaType, Timestamp: s.now()}
	return id, nil
}

// Get returns the attachment with id.
func (s *Store) Get(id string) (Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	return img, ok
}

// Len returns the number of stored attachments.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// Snapshot returns a copy of every stored attachment by id.
func (s *Store) Snapshot() map[string]Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Image, len(s.images))
	for id, img := range s.images {
		out[id] = img
	}
	return out
}

// Referenced returns the attachments text refers to, keyed by id. Unknown ids are
// skipped.
func (s *Store) Referenced(text string) map[string]backend.Attachment {
	ids := Parse(text).ImageIDs
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out map[string]backend.Attachment
	for _, id := range ids {
		img, ok := s.images[id]
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]backend.Attachment, len(ids))
		}
		out[id] = backend.Attachment{ID: id, MediaType: img.MediaType, Data: img.Data}
	}
	return out
}

// Clear drops every attachment. Ids keep increasing across clears.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = make(map[string]Image)
}
