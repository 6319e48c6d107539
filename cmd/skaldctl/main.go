package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/sre-norns/skald/pkg/grace"
	"github.com/sre-norns/skald/pkg/skald"
)

type commandContext struct {
	Context         context.Context
	OutputFormatter formatter
}

func (c *commandContext) apiClient() (*skald.RestApiClient, error) {
	return skald.NewRestApiClient(appCli.Server, appCli.Token)
}

type outputFormat string

func (f outputFormat) AfterApply(cfg *commandContext) (err error) {
	cfg.OutputFormatter, err = getFormatter(f)
	return err
}

var appCli struct {
	Server string `help:"Address of the API server" default:"http://localhost:4000" env:"SKALD_SERVER"`
	Token  string `help:"Bearer token for authenticated calls" env:"SKALD_TOKEN"`

	Format outputFormat `enum:"yaml,yml,json" help:"Data output format" default:"yml"`

	Login    LoginCmd    `cmd:"" help:"Authenticate and print a bearer token"`
	Register RegisterCmd `cmd:"" help:"Register a new account"`
	Get      GetCmd      `cmd:"" help:"Get and display a resource from the server"`
	List     ListCmd     `cmd:"" help:"List a collection of resources"`
	Create   CreateCmd   `cmd:"" help:"Create a new resource"`
	Publish  PublishCmd  `cmd:"" help:"Publish a draft post"`
	Delete   DeleteCmd   `cmd:"" help:"Delete a resource"`
}

func main() {
	cfg := &commandContext{
		Context:         grace.SetupSignalHandler(),
		OutputFormatter: yamlFormatter,
	}

	appCtx := kong.Parse(&appCli,
		kong.Name("skaldctl"),
		kong.Description("Skald API command line client"),
		kong.Bind(cfg),
	)

	appCtx.FatalIfErrorf(appCtx.Run(cfg))
}
