package ui

import (
	"errors"
	"strings"

	"github.com/atotto/clipboard"

	"repl-toolkit/actions"
)

// ActionPaste is the name of the clipboard paste action.
const ActionPaste = "paste_clipboard"

var errNoClipboard = errors.New("no clipboard utility available")

// readClipboard is replaced in tests.
var readClipboard = func() (string, error) {
	if clipboard.Unsupported {
		return "", errNoClipboard
	}
	return clipboard.ReadAll()
}

// NewPasteAction returns an action that inserts the clipboard text into the pending
// input. Bound to /paste and F6.
func NewPasteAction(prefix string) actions.Action {
	return actions.Action{
		Name:            ActionPaste,
		Description:     "Insert the clipboard contents into the input",
		Category:        actions.CategoryGeneral,
		Command:         prefix + "paste",
		Keys:            []string{"F6"},
		KeysDescription: "Paste clipboard",
		Handler:         pasteClipboard,
	}
}

func pasteClipboard(ctx *actions.Context) error {
	text, err := readClipboard()
	if err != nil {
		return actions.Invalid("cannot read clipboard: %v", err)
	}
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		ctx.Print("Clipboard is empty")
		return nil
	}

	if ctx.Insert != nil {
		ctx.Insert(text)
		return nil
	}
	ctx.Print(text)
	return nil
}
