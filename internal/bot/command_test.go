package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/atelier/internal/stability"
)

func TestApplicationCommand_Definition(t *testing.T) {
	cmd := applicationCommand()
	if cmd.Name != "imagine" {
		t.Errorf("name = %q", cmd.Name)
	}
	if len(cmd.Options) != 9 {
		t.Fatalf("options = %d, want 9", len(cmd.Options))
	}
	if cmd.Options[0].Name != "prompt" || !cmd.Options[0].Required {
		t.Errorf("first option = %+v, prompt must be required", cmd.Options[0])
	}
	for _, opt := range cmd.Options[1:] {
		if opt.Required {
			t.Errorf("option %s should be optional", opt.Name)
		}
	}
}

func TestParseOptions_Defaults(t *testing.T) {
	data := discordgo.ApplicationCommandInteractionData{
		Name: commandName,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "prompt", Type: discordgo.ApplicationCommandOptionString, Value: "a fox"},
		},
	}
	req := parseOptions(data, "default-model")

	if req.Prompt != "a fox" {
		t.Errorf("prompt = %q", req.Prompt)
	}
	if req.Steps != 30 || req.CfgScale != 7.0 || req.Width != 512 || req.Height != 512 || req.Samples != 1 {
		t.Errorf("defaults = %+v", req)
	}
	if req.Model != "default-model" {
		t.Errorf("model = %q, want config default", req.Model)
	}
	if req.Seed != 0 {
		t.Errorf("seed = %d, want 0", req.Seed)
	}
}

func TestParseOptions_AllOptions(t *testing.T) {
	data := discordgo.ApplicationCommandInteractionData{
		Name: commandName,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "prompt", Type: discordgo.ApplicationCommandOptionString, Value: "a fox"},
			{Name: "negative_prompt", Type: discordgo.ApplicationCommandOptionString, Value: "blurry"},
			{Name: "steps", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(40)},
			{Name: "cfg_scale", Type: discordgo.ApplicationCommandOptionNumber, Value: float64(12.5)},
			{Name: "width", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(768)},
			{Name: "height", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(1024)},
			{Name: "samples", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(2)},
			{Name: "seed", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(42)},
			{Name: "model", Type: discordgo.ApplicationCommandOptionString, Value: "custom-model"},
		},
	}
	req := parseOptions(data, "default-model")

	want := stability.GenerateRequest{
		Prompt:         "a fox",
		NegativePrompt: "blurry",
		Steps:          40,
		CfgScale:       12.5,
		Width:          768,
		Height:         1024,
		Samples:        2,
		Seed:           42,
		Model:          "custom-model",
	}
	if req != want {
		t.Errorf("req = %+v, want %+v", req, want)
	}
}

func TestClampRequest(t *testing.T) {
	tests := []struct {
		name string
		in   stability.GenerateRequest
		want stability.GenerateRequest
	}{
		{
			name: "below minimums",
			in:   stability.GenerateRequest{Steps: 1, CfgScale: 0.1, Width: 100, Height: 100, Samples: 0, Seed: -5},
			want: stability.GenerateRequest{Steps: 10, CfgScale: 1, Width: 512, Height: 512, Samples: 1, Seed: 0},
		},
		{
			name: "above maximums",
			in:   stability.GenerateRequest{Steps: 200, CfgScale: 50, Width: 2048, Height: 4096, Samples: 10},
			want: stability.GenerateRequest{Steps: 80, CfgScale: 30, Width: 512, Height: 512, Samples: 4},
		},
		{
			name: "valid passes through",
			in:   stability.GenerateRequest{Steps: 30, CfgScale: 7, Width: 1024, Height: 256, Samples: 2, Seed: 7},
			want: stability.GenerateRequest{Steps: 30, CfgScale: 7, Width: 1024, Height: 256, Samples: 2, Seed: 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.in
			clampRequest(&req)
			if req != tt.want {
				t.Errorf("clamped = %+v, want %+v", req, tt.want)
			}
		})
	}
}
