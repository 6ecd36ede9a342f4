package keys

import (
	"github.com/charmbracelet/bubbles/key"
)

type KeyName int

const (
	KeySubmit    KeyName = iota // Submit the current buffer regardless of content.
	KeyNewline                  // Enter inserts a newline unless the buffer is a command.
	KeyCancel                   // Cancel the running backend call.
	KeyInterrupt                // Interrupt: leave the prompt, or cancel while thinking.
	KeyEOF                      // End of input on an empty prompt.
	KeyComplete                 // Complete the command under the cursor.
	KeyHistoryPrev
	KeyHistoryNext
)

// GlobalKeyStringsMap is a global, immutable map string to keybinding.
var GlobalKeyStringsMap = map[string]KeyName{
	"alt+enter": KeySubmit,
	"enter":     KeyNewline,
	"alt+c":     KeyCancel,
	"ctrl+c":    KeyInterrupt,
	"ctrl+d":    KeyEOF,
	"tab":       KeyComplete,
	"ctrl+p":    KeyHistoryPrev,
	"ctrl+n":    KeyHistoryNext,
}

// GlobalkeyBindings is a global, immutable map of KeyName to keybinding.
var GlobalkeyBindings = map[KeyName]key.Binding{
	KeySubmit: key.NewBinding(
		key.WithKeys("alt+enter"),
		key.WithHelp("alt+↵", "send"),
	),
	KeyNewline: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("↵", "newline / run command"),
	),
	KeyCancel: key.NewBinding(
		key.WithKeys("alt+c"),
		key.WithHelp("alt+c", "cancel"),
	),
	KeyInterrupt: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("^c", "interrupt"),
	),
	KeyEOF: key.NewBinding(
		key.WithKeys("ctrl+d"),
		key.WithHelp("^d", "exit on empty input"),
	),
	KeyComplete: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "complete command"),
	),
	KeyHistoryPrev: key.NewBinding(
		key.WithKeys("ctrl+p"),
		key.WithHelp("^p", "previous entry"),
	),
	KeyHistoryNext: key.NewBinding(
		key.WithKeys("ctrl+n"),
		key.WithHelp("^n", "next entry"),
	),
}

// Reserved reports whether spec is owned by the line editor itself. Actions may not
// claim these keys because the editor consumes them before shortcut routing.
func Reserved(spec string) bool {
	_, ok := GlobalKeyStringsMap[spec]
	return ok
}
