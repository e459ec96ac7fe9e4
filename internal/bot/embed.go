package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/atelier/internal/stability"
)

const (
	colorSuccess = 0x2ecc71

	// Discord caps embed descriptions at 4096 and field values at 1024.
	maxPromptLen   = 3500
	maxNegativeLen = 1024
)

// resultEmbed builds the embed posted alongside a generated image.
func resultEmbed(req stability.GenerateRequest, seed int64) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Image generated",
		Description: fmt.Sprintf("**Prompt:** %s", truncate(req.Prompt, maxPromptLen)),
		Color:       colorSuccess,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Generated with Stability AI",
		},
	}

	if req.NegativePrompt != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Negative prompt",
			Value: truncate(req.NegativePrompt, maxNegativeLen),
		})
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name: "Settings",
		Value: fmt.Sprintf("Model: `%s`\nSeed: `%d`\n%dx%dpx • Steps: `%d` • Samples: `%d` • CFG: `%.1f`",
			req.Model, seed, req.Width, req.Height, req.Steps, req.Samples, req.CfgScale),
	})

	return embed
}

// truncate shortens s to at most n characters.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
