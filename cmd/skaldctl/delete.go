package main

import (
	"fmt"

	"github.com/sre-norns/skald/pkg/skald"
)

type (
	DeleteAccount struct {
		Id skald.ResourceID `help:"Id of the account" arg:"" name:"account"`
	}

	DeletePost struct {
		Id skald.ResourceID `help:"Id of the post" arg:"" name:"post"`
	}

	DeleteLead struct {
		Id skald.ResourceID `help:"Id of the lead" arg:"" name:"lead"`
	}

	DeleteCmd struct {
		Account DeleteAccount `cmd:"" help:"Delete an account"`
		Post    DeletePost    `cmd:"" help:"Delete a post"`
		Lead    DeleteLead    `cmd:"" help:"Delete a lead"`
	}
)

func reportDeletion(what string, id skald.ResourceID, existed bool) error {
	if !existed {
		return fmt.Errorf("%v %q not found", what, id)
	}

	fmt.Printf("%v %q deleted\n", what, id)

	return nil
}

func (c *DeleteAccount) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	existed, err := client.DeleteAccount(cfg.Context, c.Id)
	if err != nil {
		return err
	}

	return reportDeletion("account", c.Id, existed)
}

func (c *DeletePost) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	existed, err := client.DeletePost(cfg.Context, c.Id)
	if err != nil {
		return err
	}

	return reportDeletion("post", c.Id, existed)
}

func (c *DeleteLead) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	existed, err := client.DeleteLead(cfg.Context, c.Id)
	if err != nil {
		return err
	}

	return reportDeletion("lead", c.Id, existed)
}
