package keys

import "sort"

// KeyHelpInfo adds extended help information to key bindings
type KeyHelpInfo struct {
	Description string // Extended description for help text
}

// KeyHelpMap maps KeyNames to their help information
var KeyHelpMap = map[KeyName]KeyHelpInfo{
	KeySubmit:      {Description: "Send the current input"},
	KeyNewline:     {Description: "Insert a newline, or run the input if it is a command"},
	KeyCancel:      {Description: "Cancel the running operation"},
	KeyInterrupt:   {Description: "Leave the prompt, or cancel the running operation"},
	KeyEOF:         {Description: "Exit when the input is empty"},
	KeyComplete:    {Description: "Complete the command name under the cursor"},
	KeyHistoryPrev: {Description: "Recall the previous history entry"},
	KeyHistoryNext: {Description: "Recall the next history entry"},
}

// GetKeyHelp returns the help information for a key
func GetKeyHelp(keyName KeyName) KeyHelpInfo {
	info, exists := KeyHelpMap[keyName]
	if !exists {
		return KeyHelpInfo{Description: "No description"}
	}
	return info
}

// EditorBinding is one row of the editor's built-in key listing.
type EditorBinding struct {
	Keys        string
	Description string
}

// EditorBindings lists the line editor's own keys in KeyName order.
func EditorBindings() []EditorBinding {
	names := make([]KeyName, 0, len(GlobalkeyBindings))
	for name := range GlobalkeyBindings {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	rows := make([]EditorBinding, 0, len(names))
	for _, name := range names {
		rows = append(rows, EditorBinding{
			Keys:        GlobalkeyBindings[name].Help().Key,
			Description: GetKeyHelp(name).Description,
		})
	}
	return rows
}
