package main

import (
	"fmt"

	"github.com/sre-norns/skald/pkg/skald"
)

type (
	LoginCmd struct {
		Email    string `help:"Email of the account" arg:"" name:"email"`
		Password string `help:"Password of the account" arg:"" name:"password"`
	}

	RegisterCmd struct {
		Name     string `help:"Display name of the new account" required:""`
		Email    string `help:"Email of the new account" required:""`
		Password string `help:"Password of the new account" required:""`
		Age      int    `help:"Age of the account holder" optional:""`
	}

	CreatePost struct {
		Title   string           `help:"Title of the post" required:""`
		Content string           `help:"Body of the post" required:""`
		Author  skald.ResourceID `help:"Id of the account that owns the post" required:""`
		Tags    []string         `help:"Tags to attach to the post" optional:""`
		Draft   bool             `help:"Keep the post unpublished" optional:""`
	}

	CreateLead struct {
		Title     string   `help:"Salutation of the lead" required:""`
		FirstName string   `help:"First name of the lead" required:""`
		LastName  string   `help:"Last name of the lead" optional:""`
		Email     string   `help:"Email of the lead" required:""`
		Company   []string `help:"Companies the lead is associated with" optional:""`
		Phone     string   `help:"Phone number of the lead" optional:""`
		Status    string   `help:"Pipeline status of the lead" optional:""`
	}

	CreateCmd struct {
		Post CreatePost `cmd:"" help:"Create a new post"`
		Lead CreateLead `cmd:"" help:"Create a new lead"`
	}

	PublishCmd struct {
		Id skald.ResourceID `help:"Id of the post to publish" arg:"" name:"post"`
	}
)

func (c *LoginCmd) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.Login(cfg.Context, skald.LoginRequest{
		Email:    c.Email,
		Password: c.Password,
	})
	if err != nil {
		return err
	}

	// The token alone goes to stdout so it can be captured into SKALD_TOKEN
	fmt.Println(result.Token)

	return nil
}

func (c *RegisterCmd) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.Register(cfg.Context, skald.CreateAccountRequest{
		Name:     c.Name,
		Email:    c.Email,
		Password: c.Password,
		Age:      c.Age,
	})
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}

func (c *CreatePost) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	entry := skald.CreatePostRequest{
		Title:    c.Title,
		Content:  c.Content,
		AuthorID: c.Author,
		Tags:     skald.StringList(c.Tags),
	}
	if c.Draft {
		published := false
		entry.Published = &published
	}

	result, err := client.CreatePost(cfg.Context, entry)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}

func (c *CreateLead) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.CreateLead(cfg.Context, skald.CreateLeadRequest{
		Title:     c.Title,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Company:   skald.StringList(c.Company),
		Phone:     c.Phone,
		Status:    c.Status,
	})
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}

func (c *PublishCmd) Run(cfg *commandContext) error {
	client, err := cfg.apiClient()
	if err != nil {
		return err
	}

	result, err := client.PublishPost(cfg.Context, c.Id)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(result)
}
