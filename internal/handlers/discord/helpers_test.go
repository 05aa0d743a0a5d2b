package discord

import (
	"github.com/bwmarrin/discordgo"
)

func commandInteraction(userID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:      "i-" + userID,
			Type:    discordgo.InteractionApplicationCommand,
			GuildID: "g1",
			Member: &discordgo.Member{
				User: &discordgo.User{ID: userID, Username: "user-" + userID},
			},
		},
	}
}

func buttonInteraction(userID, customID string) *discordgo.InteractionCreate {
	i := commandInteraction(userID)
	i.Type = discordgo.InteractionMessageComponent
	i.Data = discordgo.MessageComponentInteractionData{CustomID: customID}
	return i
}
