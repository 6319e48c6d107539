package main

import (
	"github.com/sre-norns/skald/pkg/skald"
)

type (
	Account struct {
		Id skald.ResourceID `help:"Id of the account" arg:"" name:"account"`
	}

	Post struct {
		Id skald.ResourceID `help:"Id of the post" arg:"" name:"post"`
	}

	PostAuthor struct {
		Id skald.ResourceID `help:"Id of the post" arg:"" name:"post"`
	}

	Lead struct {
		Id skald.ResourceID `help:"Id of the lead" arg:"" name:"lead"`
	}

	Me struct{}

	GetCmd struct {
		Account Account    `cmd:"" help:"Get an account by id"`
		Post    Post       `cmd:"" help:"Get a post by id"`
		Author  PostAuthor `cmd:"" help:"Get the account that owns a post"`
		Lead    Lead       `cmd:"" help:"Get a lead by id"`
		Me      Me         `cmd:"" help:"Get the account identified by the current token"`
	}
)

func (c *Account) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.GetAccount(cfg.Context, c.Id)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}

func (c *Post) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.GetPost(cfg.Context, c.Id)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}

func (c *PostAuthor) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.GetPostAuthor(cfg.Context, c.Id)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}

func (c *Lead) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.GetLead(cfg.Context, c.Id)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}

func (c *Me) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.Me(cfg.Context)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}
