package bot

import (
	"github.com/bwmarrin/discordgo"
)

// Responder is the part of *discordgo.Session used to answer interactions
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Request is a single slash command invocation
type Request struct {
	Interaction *discordgo.InteractionCreate
	User        *discordgo.User

	responder Responder
	responded bool
}

// Name returns the invoked command name
func (r *Request) Name() string {
	return r.Interaction.ApplicationCommandData().Name
}

// Subcommand returns the invoked subcommand, or "" when there is none
func (r *Request) Subcommand() string {
	for _, opt := range r.Interaction.ApplicationCommandData().Options {
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand {
			return opt.Name
		}
	}
	return ""
}

// Reply sends the initial response
func (r *Request) Reply(content string) error {
	return r.respond(content, 0)
}

// ReplyEphemeral sends an initial response only the invoking user can see
func (r *Request) ReplyEphemeral(content string) error {
	return r.respond(content, discordgo.MessageFlagsEphemeral)
}

func (r *Request) respond(content string, flags discordgo.MessageFlags) error {
	err := r.responder.InteractionRespond(r.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
	if err == nil {
		r.responded = true
	}
	return err
}

// Edit replaces the content of the initial response
func (r *Request) Edit(content string) error {
	_, err := r.responder.InteractionResponseEdit(r.Interaction.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	return err
}

// interactionUser returns the invoking user for guild and DM interactions
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{}
}
