// Package formatting detects and renders styled output text.
//
// Text passed to a printer may be plain, may already carry ANSI escape codes, or may
// use HTML-like tags such as <b>bold</b> or <ansired>red</ansired>. Render turns the
// tags into escape codes for the terminal's colour profile and leaves the other two
// forms untouched.
package formatting

import (
	"html"
	"regexp"
	"strings"

	"github.com/muesli/termenv"
)

// Format is the detected markup of a text.
type Format int

const (
	FormatPlain Format = iota
	FormatANSI
	FormatHTML
)

func (f Format) String() string {
	switch f {
	case FormatANSI:
		return "ansi"
	case FormatHTML:
		return "html"
	default:
		return "plain"
	}
}

var (
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	tagPattern  = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*\s*/?>`)
)

// Detect classifies text. ANSI codes win over tags; "a < b and c > d" is plain.
func Detect(text string) Format {
	if ansiPattern.MatchString(text) {
		return FormatANSI
	}
	if tagPattern.MatchString(text) {
		return FormatHTML
	}
	return FormatPlain
}

// Renderer renders tagged text for one colour profile.
type Renderer struct {
	profile termenv.Profile
}

// NewRenderer returns a renderer for profile. Use termenv.Ascii to strip styling.
func NewRenderer(profile termenv.Profile) *Renderer {
	return &Renderer{profile: profile}
}

// Render returns text ready for the terminal.
func (r *Renderer) Render(text string) string {
	if Detect(text) != FormatHTML {
		return text
	}
	return r.renderTags(text)
}

type attrs struct {
	bold, italic, underline, strike, reverse, faint bool
	fg, bg                                          string
}

func (r *Renderer) renderTags(text string) string {
	var (
		out   strings.Builder
		stack []attrs
		cur   attrs
		last  int
	)

	emit := func(segment string) {
		if segment == "" {
			return
		}
		segment = html.UnescapeString(segment)
		out.WriteString(r.style(segment, cur))
	}

	for _, loc := range tagPattern.FindAllStringIndex(text, -1) {
		emit(text[last:loc[0]])
		last = loc[1]

		tag := strings.Trim(text[loc[0]:loc[1]], "<>/ \t")
		name := strings.ToLower(tag)
		closing := strings.HasPrefix(text[loc[0]:], "</")
		selfClosing := strings.HasSuffix(strings.TrimSpace(text[loc[0]:loc[1]]), "/>")

		switch {
		case name == "br":
			out.WriteString("\n")
		case closing:
			if n := len(stack); n > 0 {
				cur = stack[n-1]
				stack = stack[:n-1]
			}
		case selfClosing:
		default:
			stack = append(stack, cur)
			cur = apply(cur, name)
		}
	}
	emit(text[last:])
	return out.String()
}

func apply(a attrs, name string) attrs {
	switch name {
	case "b", "strong", "bold":
		a.bold = true
	case "i", "em", "italic":
		a.italic = true
	case "u", "underline":
		a.underline = true
	case "s", "strike":
		a.strike = true
	case "reverse":
		a.reverse = true
	case "dim", "faint":
		a.faint = true
	default:
		if strings.HasPrefix(name, "bg") {
			if c, ok := namedColors[strings.TrimPrefix(name, "bg")]; ok {
				a.bg = c
			}
		} else if c, ok := namedColors[name]; ok {
			a.fg = c
		}
	}
	return a
}

func (r *Renderer) style(segment string, a attrs) string {
	if a == (attrs{}) || r.profile == termenv.Ascii {
		return segment
	}
	s := r.profile.String(segment)
	if a.bold {
		s = s.Bold()
	}
	if a.italic {
		s = s.Italic()
	}
	if a.underline {
		s = s.Underline()
	}
	if a.strike {
		s = s.CrossOut()
	}
	if a.reverse {
		s = s.Reverse()
	}
	if a.faint {
		s = s.Faint()
	}
	if a.fg != "" {
		if c := r.profile.Color(a.fg); c != nil {
			s = s.Foreground(c)
		}
	}
	if a.bg != "" {
		if c := r.profile.Color(a.bg); c != nil {
			s = s.Background(c)
		}
	}
	return s.String()
}

// Strip removes tags and ANSI codes, leaving the visible text.
func Strip(text string) string {
	switch Detect(text) {
	case FormatANSI:
		return ansiPattern.ReplaceAllString(text, "")
	case FormatHTML:
		return NewRenderer(termenv.Ascii).Render(text)
	default:
		return text
	}
}

// AutoPrinter wraps print so every text is rendered for profile first.
func AutoPrinter(print func(string), profile termenv.Profile) func(string) {
	r := NewRenderer(profile)
	return func(text string) {
		print(r.Render(text))
	}
}

// ANSI colour indexes and a few named CSS colours, keyed by tag name.
var namedColors = map[string]string{
	"ansiblack":         "0",
	"ansired":           "1",
	"ansigreen":         "2",
	"ansiyellow":        "3",
	"ansiblue":          "4",
	"ansimagenta":       "5",
	"ansicyan":          "6",
	"ansigray":          "7",
	"ansibrightblack":   "8",
	"ansibrightred":     "9",
	"ansibrightgreen":   "10",
	"ansibrightyellow":  "11",
	"ansibrightblue":    "12",
	"ansibrightmagenta": "13",
	"ansibrightcyan":    "14",
	"ansiwhite":         "15",
	"black":             "#000000",
	"red":               "#ff0000",
	"green":             "#008000",
	"yellow":            "#ffff00",
	"blue":              "#0000ff",
	"magenta":           "#ff00ff",
	"cyan":              "#00ffff",
	"white":             "#ffffff",
	"gray":              "#808080",
	"grey":              "#808080",
	"orange":            "#ffa500",
	"purple":            "#800080",
	"darkcyan":          "#008b8b",
	"darkgreen":         "#006400",
	"darkred":           "#8b0000",
	"darkblue":          "#00008b",
	"skyblue":           "#87ceeb",
	"teal":              "#008080",
}
