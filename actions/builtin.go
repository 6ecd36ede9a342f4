package actions

import "strings"

// Built-in action names.
const (
	ActionHelp      = "show_help"
	ActionShortcuts = "list_shortcuts"
	ActionShell     = "shell"
	ActionExit      = "exit_repl"
	ActionQuit      = "quit_repl"
)

// builtinActions returns fresh built-in definitions for one registry.
func builtinActions(prefix string) []Action {
	return []Action{
		{
			Name:            ActionHelp,
			Description:     "Show help for all actions, or details for one action or command",
			Category:        CategoryInfo,
			Handler:         showHelp,
			Command:         prefix + "help",
			CommandUsage:    prefix + "help [action|command]",
			Keys:            []string{"F1"},
			KeysDescription: "Show help",
		},
		{
			Name:        ActionShortcuts,
			Description: "List keyboard shortcuts",
			Category:    CategoryInfo,
			Handler:     listShortcuts,
			Command:     prefix + "shortcuts",
		},
		{
			Name:         ActionShell,
			Description:  "Run a command and insert its output, or open an interactive shell",
			Category:     CategoryShell,
			Handler:      runShell,
			Command:      prefix + "shell",
			CommandUsage: prefix + "shell [command [args...]]",
		},
		{
			Name:        ActionExit,
			Description: "Exit the session",
			Category:    CategoryControl,
			Command:     prefix + "exit",
		},
		{
			Name:        ActionQuit,
			Description: "Quit the session",
			Category:    CategoryControl,
			Command:     prefix + "quit",
		},
	}
}

// IsExit reports whether name is one of the built-in exit actions.
func IsExit(name string) bool {
	return name == ActionExit || name == ActionQuit
}

func showHelp(ctx *Context) error {
	g := NewGenerator(ctx.Registry)
	if len(ctx.Args) == 0 {
		ctx.Print(g.GenerateHelp())
		return nil
	}

	target := ctx.Args[0]
	if a, ok := ctx.Registry.Get(target); ok {
		ctx.Print(g.GenerateActionHelp(a))
		return nil
	}
	if !strings.HasPrefix(target, ctx.Registry.Prefix()) {
		target = ctx.Registry.Prefix() + target
	}
	if m, ok := ctx.Registry.LookupCommand(target); ok && m.Command == target {
		ctx.Print(g.GenerateActionHelp(m.Action))
		return nil
	}
	ctx.Printf("No help available for: %s", ctx.Args[0])
	return nil
}

func listShortcuts(ctx *Context) error {
	ctx.Print(NewGenerator(ctx.Registry).GenerateShortcuts())
	return nil
}
