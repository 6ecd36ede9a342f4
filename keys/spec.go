package keys

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Key specs are written by people ("F1", "ctrl-s", "Alt+H", "escape h") but matched
// against the strings bubbletea reports for key presses ("f1", "ctrl+s", "alt+h").
// Normalize maps the former onto the latter so both sides index the same value.

var modifierAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"c":       "ctrl",
	"alt":     "alt",
	"meta":    "alt",
	"m":       "alt",
	"option":  "alt",
	"shift":   "shift",
	"s":       "shift",
}

var keyAliases = map[string]string{
	"escape":    "esc",
	"return":    "enter",
	"del":       "delete",
	"ins":       "insert",
	"pageup":    "pgup",
	"page_up":   "pgup",
	"pagedown":  "pgdown",
	"page_down": "pgdown",
	"space":     " ",
	"spacebar":  " ",
	"bs":        "backspace",
}

// Normalize converts a human-written key spec into bubbletea's key string form.
func Normalize(spec string) (string, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return "", fmt.Errorf("empty key spec")
	}

	// prompt_toolkit style "escape h" / "escape, h" sequences mean alt+h.
	if fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' }); len(fields) == 2 &&
		strings.EqualFold(fields[0], "escape") {
		raw = "alt+" + fields[1]
	}

	if raw == " " || utf8.RuneCountInString(raw) == 1 {
		return raw, nil
	}

	tokens := splitSpec(raw)
	if len(tokens) == 0 {
		return "", fmt.Errorf("invalid key spec %q", spec)
	}

	var alt, ctrl, shift bool
	for _, tok := range tokens[:len(tokens)-1] {
		mod, ok := modifierAliases[strings.ToLower(tok)]
		if !ok {
			return "", fmt.Errorf("invalid modifier %q in key spec %q", tok, spec)
		}
		switch mod {
		case "alt":
			alt = true
		case "ctrl":
			ctrl = true
		case "shift":
			shift = true
		}
	}

	name := tokens[len(tokens)-1]
	if utf8.RuneCountInString(name) == 1 {
		if shift && !ctrl {
			name = strings.ToUpper(name)
			shift = false
		} else {
			name = strings.ToLower(name)
		}
	} else {
		name = strings.ToLower(name)
		if alias, ok := keyAliases[name]; ok {
			name = alias
		}
	}

	var sb strings.Builder
	if alt {
		sb.WriteString("alt+")
	}
	if ctrl {
		sb.WriteString("ctrl+")
	}
	if shift {
		sb.WriteString("shift+")
	}
	sb.WriteString(name)
	return sb.String(), nil
}

// splitSpec splits on '+' and '-' while keeping a trailing separator character as the
// key itself ("ctrl+-" is ctrl and minus).
func splitSpec(raw string) []string {
	var tokens []string
	var current strings.Builder
	runes := []rune(raw)
	for i, r := range runes {
		if (r == '+' || r == '-') && current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
			continue
		}
		if (r == '+' || r == '-') && i != len(runes)-1 {
			return nil
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// MustNormalize is Normalize for package-level literals.
func MustNormalize(spec string) string {
	k, err := Normalize(spec)
	if err != nil {
		panic(err)
	}
	return k
}

// Label renders a normalized key string for help output ("ctrl+s" -> "Ctrl+S").
func Label(normalized string) string {
	if normalized == " " {
		return "Space"
	}
	parts := strings.Split(normalized, "+")
	if strings.HasSuffix(normalized, "++") || normalized == "+" {
		parts = append(parts[:len(parts)-2], "+")
	}
	for i, p := range parts {
		switch {
		case p == " ":
			parts[i] = "Space"
		case utf8.RuneCountInString(p) == 1:
			if i > 0 {
				parts[i] = strings.ToUpper(p)
			}
		default:
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "+")
}
