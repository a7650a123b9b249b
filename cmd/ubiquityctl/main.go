// Package main provides the command line client for ubiquityd.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/ubiquity/internal/api/connect"
)

var (
	app    = kingpin.New("ubiquityctl", "ubiquity player client")
	server = app.Flag("server", "Server address").Default("http://localhost:7019").Envar("UBIQUITY_SERVER").String()
	token  = app.Flag("token", "Access token (or set UBIQUITY_TOKEN env)").Envar("UBIQUITY_TOKEN").String()

	// watch command
	watchCmd = app.Command("watch", "Print player notifications as they happen")

	// shell command
	shellCmd = app.Command("shell", "Interactive shell")
)

// cliArgs holds the parsed positional arguments of one table command.
type cliArgs struct {
	single []*string
	rest   *[]string
}

func (a cliArgs) values() []string {
	var out []string
	for _, s := range a.single {
		out = append(out, *s)
	}
	if a.rest != nil {
		out = append(out, *a.rest...)
	}
	return out
}

func registerCommands() map[string]cliArgs {
	parsed := make(map[string]cliArgs, len(commands))
	for _, c := range commands {
		cmd := app.Command(c.name, c.help)
		var a cliArgs
		for _, def := range c.args {
			arg := cmd.Arg(def.name, def.help).Required()
			if def.kind == argStrings {
				a.rest = arg.Strings()
			} else {
				a.single = append(a.single, arg.String())
			}
		}
		parsed[c.name] = a
	}
	return parsed
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	parsed := registerCommands()
	name := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: token is required (use --token or UBIQUITY_TOKEN env)")
		os.Exit(1)
	}
	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch name {
	case watchCmd.FullCommand():
		err = watch(ctx, client)
	case shellCmd.FullCommand():
		err = runShell(ctx, client)
	default:
		c, _ := findCommand(name)
		err = execute(ctx, client, c, parsed[name].values())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// execute calls the procedure behind c and prints the response.
func execute(ctx context.Context, client *apiconnect.Client, c command, args []string) error {
	params, err := c.params(args)
	if err != nil {
		return err
	}
	res, err := client.Call(ctx, c.procedure, params)
	if err != nil {
		return err
	}
	if c.print != nil {
		c.print(res)
	} else {
		printStatus(res)
	}
	return nil
}

func watch(ctx context.Context, client *apiconnect.Client) error {
	return client.Subscribe(ctx, func(n map[string]any) error {
		fmt.Println(formatNotification(n))
		return nil
	})
}
