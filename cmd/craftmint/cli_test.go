package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runApp runs the CLI with args and returns what it wrote to stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"craftmint"}, args...))
	return out.String(), err
}

func TestApp_CommandTree(t *testing.T) {
	app := newApp()
	names := map[string][]string{}
	for _, cmd := range app.Commands {
		for _, sub := range cmd.Subcommands {
			names[cmd.Name] = append(names[cmd.Name], sub.Name)
		}
	}

	require.ElementsMatch(t, []string{"list-artifacts", "get-purchase", "list-purchases", "migrate"}, names["db"])
	require.ElementsMatch(t, []string{"verify-payment", "nfts", "payment-request", "await"}, names["client"])
	require.ElementsMatch(t, []string{"health", "version"}, names["server"])
	require.NotNil(t, app.Command("verify"))
}
