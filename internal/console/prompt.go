package console

import (
	"context"
	"fmt"
	"strings"

	prompt "github.com/c-bata/go-prompt"
)

type command struct {
	name        string
	usage       string
	description string
}

var commands = []command{
	{name: "resources", usage: "resources", description: "List advertised resources"},
	{name: "read", usage: "read [<uri>] [--select=<jsonpath>]", description: "Read a resource (default: the repository listing)"},
	{name: "tools", usage: "tools", description: "List advertised tools"},
	{name: "call", usage: "call <tool> [key=value ...] [--select=<jsonpath>]", description: "Invoke a tool; key:=json passes a JSON value"},
	{name: "help", usage: "help", description: "Show this help"},
	{name: "exit", usage: "exit | quit", description: "Exit"},
}

// Start runs the interactive prompt until exit or quit
func Start(ctx context.Context, h *Handler, banner, prefix string) {
	// prime tool completion
	if result, err := h.Caller.ListTools(ctx); err == nil {
		for _, t := range result.Tools {
			h.tools = append(h.tools, t.Name)
		}
	}

	fmt.Fprintln(h.Out, banner)
	fmt.Fprintln(h.Out, "Type 'help' for available commands, 'exit' or 'quit' to exit.")

	done := false
	p := prompt.New(
		func(in string) {
			if !h.Execute(ctx, in) {
				done = true
				fmt.Fprintln(h.Out, "Bye.")
			}
		},
		h.completer,
		prompt.OptionPrefix(prefix),
		prompt.OptionTitle("repo-mcp console"),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			return done || ctx.Err() != nil
		}),
	)
	p.Run()
}

func (h *Handler) completer(d prompt.Document) []prompt.Suggest {
	words := strings.Fields(d.TextBeforeCursor())
	current := d.GetWordBeforeCursor()

	// completing the tool name of a call
	if len(words) > 0 && strings.EqualFold(words[0], "call") &&
		(len(words) == 1 && current == "" || len(words) == 2 && current != "") {
		suggestions := make([]prompt.Suggest, 0, len(h.tools))
		for _, name := range h.tools {
			suggestions = append(suggestions, prompt.Suggest{Text: name})
		}
		return prompt.FilterHasPrefix(suggestions, current, true)
	}

	if len(words) > 1 || len(words) == 1 && current == "" {
		return nil
	}

	suggestions := make([]prompt.Suggest, 0, len(commands))
	for _, c := range commands {
		suggestions = append(suggestions, prompt.Suggest{Text: c.name, Description: c.usage})
	}
	return prompt.FilterHasPrefix(suggestions, current, true)
}
