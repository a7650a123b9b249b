package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/cockroachdb/errors"

	apiconnect "github.com/osa030/ubiquity/internal/api/connect"
)

func shellCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands)+2)
	for _, c := range commands {
		items = append(items, readline.PcItem(c.name))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("quit"))
	return readline.NewPrefixCompleter(items...)
}

// runShell reads commands until EOF or "quit".
func runShell(ctx context.Context, client *apiconnect.Client) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ubiquity> ",
		AutoComplete:    shellCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return errors.Wrap(err, "failed to start shell")
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return nil
		case "help":
			printHelp()
			continue
		}

		c, ok := findCommand(fields[0])
		if !ok {
			fmt.Printf(" [!] unknown command %q, try help\n", fields[0])
			continue
		}
		if err := execute(ctx, client, c, fields[1:]); err != nil {
			fmt.Printf(" [!] %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func printHelp() {
	for _, c := range commands {
		usage := c.name
		for _, a := range c.args {
			usage += " <" + a.name + ">"
		}
		fmt.Printf("  %-24s %s\n", usage, c.help)
	}
	fmt.Printf("  %-24s %s\n", "quit", "Leave the shell")
}
