package attachments

import (
	"fmt"
	"os"
	"strings"

	"repl-toolkit/actions"
	"repl-toolkit/config"
)

// ActionAttach is the name of the attach action.
const ActionAttach = "attach_file"

// NewAttachAction returns an action that reads an image file into store and inserts
// its placeholder into the pending input.
func NewAttachAction(store *Store, prefix string) actions.Action {
	return actions.Action{
		Name:         ActionAttach,
		Description:  "Attach an image file to the next message",
		Category:     actions.CategoryGeneral,
		Command:      prefix + "attach",
		CommandUsage: prefix + "attach <path>",
		Handler: func(ctx *actions.Context) error {
			if err := ctx.ValidateArgs(1, -1); err != nil {
				return err
			}
			path := config.ExpandUserPath(strings.Join(ctx.Args, " "))

			data, err := os.ReadFile(path)
			if err != nil {
				return actions.Invalid("cannot read %s: %v", path, err)
			}
			id, err := store.Add(data, "")
			if err != nil {
				return actions.Invalid("%s: %v", path, err)
			}

			placeholder := Placeholder(id)
			if ctx.Insert != nil {
				ctx.Insert(" " + placeholder)
			} else {
				ctx.Print(placeholder)
			}
			ctx.Printf("Attached %s as %s", path, id)
			return nil
		},
	}
}

// Describe summarizes the attachments referenced by text, one line each.
func Describe(store *Store, text string) []string {
	var lines []string
	for _, id := range Parse(text).ImageIDs {
		img, ok := store.Get(id)
		if !ok {
			lines = append(lines, fmt.Sprintf("%s: missing", id))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s, %d bytes", id, img.MediaType, len(img.Data)))
	}
	return lines
}
