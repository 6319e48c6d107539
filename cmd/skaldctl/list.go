package main

import (
	"github.com/sre-norns/skald/pkg/skald"
)

type (
	pageFlags struct {
		Offset uint `help:"Number of entries to skip" optional:""`
		Limit  uint `help:"Maximum number of entries to return" optional:""`
	}

	Accounts struct {
		pageFlags
	}

	Posts struct {
		pageFlags

		Search    string           `help:"Return only posts matching a search term" optional:""`
		Author    skald.ResourceID `help:"Return only posts by a given author" optional:""`
		Published bool             `help:"Return only published posts" optional:""`
	}

	Leads struct {
		pageFlags
	}

	ListCmd struct {
		Accounts Accounts `cmd:"" help:"List accounts"`
		Posts    Posts    `cmd:"" help:"List posts"`
		Leads    Leads    `cmd:"" help:"List leads"`
	}
)

func (f pageFlags) pagination() skald.Pagination {
	return skald.Pagination{Offset: f.Offset, Limit: f.Limit}
}

func (c *Accounts) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.ListAccounts(cfg.Context, c.pagination())
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}

func (c *Posts) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	switch {
	case c.Search != "":
		result, err := client.SearchPosts(cfg.Context, c.Search)
		if err != nil {
			return err
		}
		return cfg.OutputFormatter(result)

	case c.Author != "":
		result, err := client.ListPostsByAuthor(cfg.Context, c.Author)
		if err != nil {
			return err
		}
		return cfg.OutputFormatter(result)

	case c.Published:
		result, err := client.ListPublishedPosts(cfg.Context)
		if err != nil {
			return err
		}
		return cfg.OutputFormatter(result)
	}

	result, err := client.ListPosts(cfg.Context, c.pagination())
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}

func (c *Leads) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.ListLeads(cfg.Context, c.pagination())
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}
