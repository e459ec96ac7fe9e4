package bot

import (
	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/atelier/internal/stability"
)

// commandName is the slash command exposed by the bot.
const commandName = "imagine"

// Parameter clamp bounds. Out-of-range values are clamped server-side
// rather than rejected, so the command always does something sensible.
const (
	minSteps   = 10
	maxSteps   = 80
	minCfg     = 1.0
	maxCfg     = 30.0
	minSamples = 1
	maxSamples = 4
)

// validDimensions are the edge lengths the generation API accepts.
var validDimensions = map[int]bool{256: true, 512: true, 768: true, 1024: true}

// applicationCommand builds the /imagine command definition.
func applicationCommand() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        commandName,
		Description: "Generate an image with Stability AI (text-to-image)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "prompt",
				Description: "What to generate (required)",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "negative_prompt",
				Description: "What to avoid (optional)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "steps",
				Description: "Denoising steps (10-80, default 30)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionNumber,
				Name:        "cfg_scale",
				Description: "Prompt adherence (1-30, default 7)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "width",
				Description: "Width in px (256/512/768/1024, default 512)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "height",
				Description: "Height in px (256/512/768/1024, default 512)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "samples",
				Description: "Number of images (1-4, default 1)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "seed",
				Description: "Seed for reproducible output (optional)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "model",
				Description: "Model id (optional, defaults from config)",
			},
		},
	}
}

// parseOptions extracts a GenerateRequest from interaction data, filling
// defaults for omitted options.
func parseOptions(data discordgo.ApplicationCommandInteractionData, defaultModel string) stability.GenerateRequest {
	req := stability.GenerateRequest{
		Steps:    30,
		CfgScale: 7.0,
		Width:    512,
		Height:   512,
		Samples:  1,
		Model:    defaultModel,
	}

	for _, opt := range data.Options {
		switch opt.Name {
		case "prompt":
			req.Prompt = opt.StringValue()
		case "negative_prompt":
			req.NegativePrompt = opt.StringValue()
		case "steps":
			req.Steps = int(opt.IntValue())
		case "cfg_scale":
			req.CfgScale = opt.FloatValue()
		case "width":
			req.Width = int(opt.IntValue())
		case "height":
			req.Height = int(opt.IntValue())
		case "samples":
			req.Samples = int(opt.IntValue())
		case "seed":
			req.Seed = opt.IntValue()
		case "model":
			if v := opt.StringValue(); v != "" {
				req.Model = v
			}
		}
	}

	return req
}

// clampRequest forces all parameters into the ranges the API accepts.
func clampRequest(req *stability.GenerateRequest) {
	req.Steps = clampInt(req.Steps, minSteps, maxSteps)
	req.CfgScale = clampFloat(req.CfgScale, minCfg, maxCfg)
	req.Samples = clampInt(req.Samples, minSamples, maxSamples)
	if !validDimensions[req.Width] {
		req.Width = 512
	}
	if !validDimensions[req.Height] {
		req.Height = 512
	}
	if req.Seed < 0 {
		req.Seed = 0
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
