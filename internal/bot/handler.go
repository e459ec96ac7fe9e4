package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/atelier/internal/models"
	"github.com/zulandar/atelier/internal/stability"
	"github.com/zulandar/atelier/internal/usage"
)

// handleInteraction runs the full /imagine request path: guards, the
// generation call, result posting, and the usage row.
func (d *Daemon) handleInteraction(ctx context.Context, ic *discordgo.InteractionCreate) {
	user := interactionUser(ic)
	if user == nil {
		return
	}

	// Per-user cooldown.
	if wait := d.cooldown.Check(user.ID); wait > 0 {
		d.respondEphemeral(ic.Interaction, fmt.Sprintf(
			"Please wait `%d` seconds and try again.", int(wait.Seconds())+1))
		return
	}

	req := parseOptions(ic.ApplicationCommandData(), d.cfg.Stability.DefaultModel)

	// Keyword blocklist on both prompts.
	if d.moderator.Blocked(req.Prompt) || (req.NegativePrompt != "" && d.moderator.Blocked(req.NegativePrompt)) {
		d.respondEphemeral(ic.Interaction, "Your prompt was blocked by the keyword filter.")
		return
	}

	// Global concurrency cap. Rejected immediately — the generation API is
	// never called for requests beyond the cap.
	if !d.limiter.TryAcquire() {
		d.respondEphemeral(ic.Interaction,
			"All generation slots are busy right now — try again in a moment.")
		return
	}
	defer d.limiter.Release()

	if err := d.respondDeferred(ic.Interaction); err != nil {
		log.Printf("bot: defer response: %v", err)
		return
	}

	clampRequest(&req)

	started := time.Now()
	artifacts, err := d.gen.Generate(ctx, req)
	if err != nil {
		d.followupEphemeral(ic.Interaction, generateErrorMessage(err))
		return
	}
	latencyMs := int(time.Since(started).Milliseconds())

	if len(artifacts) == 0 {
		d.followupEphemeral(ic.Interaction,
			"No image was generated — the API returned an empty result.")
		return
	}

	sent := 0
	for idx, art := range artifacts {
		if art.Filtered() {
			d.followupEphemeral(ic.Interaction, fmt.Sprintf(
				"One output was blocked by the safety filter (finish_reason=%s). Adjust the prompt and try again.",
				art.FinishReason))
			continue
		}

		filename := fmt.Sprintf("stability_%d_%d.png", started.Unix(), idx+1)
		d.followupImage(ic.Interaction, resultEmbed(req, art.Seed), filename, art.Image)
		sent++
	}

	if sent == 0 {
		d.followupEphemeral(ic.Interaction,
			"No image could be produced (most likely the content filter).")
	}

	// One usage row per generation call. Best-effort: a failed write never
	// reaches the user.
	d.recordUsage(user, ic, req, latencyMs)
}

// recordUsage appends the usage-log row for a completed generation.
func (d *Daemon) recordUsage(user *discordgo.User, ic *discordgo.InteractionCreate, req stability.GenerateRequest, latencyMs int) {
	err := usage.Record(d.db, &models.Generation{
		UserID:         user.ID,
		Username:       user.Username,
		GuildID:        ic.GuildID,
		ChannelID:      ic.ChannelID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		Seed:           req.Seed,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		Samples:        req.Samples,
		CfgScale:       req.CfgScale,
		LatencyMs:      latencyMs,
	})
	if err != nil {
		log.Printf("bot: record usage: %v", err)
	}
}

// generateErrorMessage turns a generation failure into a readable user
// message. No retries — the user decides whether to try again.
func generateErrorMessage(err error) string {
	var apiErr *stability.APIError
	if errors.As(err, &apiErr) {
		if apiErr.RateLimited() {
			return "The image service is rate limiting us — please try again shortly."
		}
		return fmt.Sprintf("The image service rejected the request: %s", apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The generation request timed out. Try again with fewer steps or samples."
	}
	return fmt.Sprintf("The generation request failed: `%v`", err)
}

// interactionUser returns the invoking user for guild or DM interactions.
func interactionUser(ic *discordgo.InteractionCreate) *discordgo.User {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User
	}
	return ic.User
}

// respondEphemeral sends an immediate ephemeral reply.
func (d *Daemon) respondEphemeral(inter *discordgo.Interaction, text string) {
	err := d.sess.InteractionRespond(inter, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("bot: ephemeral respond: %v", err)
	}
}

// respondDeferred acknowledges the interaction with a "thinking" state so
// the slow generation call can follow up later.
func (d *Daemon) respondDeferred(inter *discordgo.Interaction) error {
	return d.sess.InteractionRespond(inter, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

// followupEphemeral posts an ephemeral follow-up after a deferred response.
func (d *Daemon) followupEphemeral(inter *discordgo.Interaction, text string) {
	_, err := d.sess.FollowupMessageCreate(inter, true, &discordgo.WebhookParams{
		Content: text,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		log.Printf("bot: ephemeral followup: %v", err)
	}
}

// followupImage posts a generated image with its embed.
func (d *Daemon) followupImage(inter *discordgo.Interaction, embed *discordgo.MessageEmbed, filename string, image []byte) {
	_, err := d.sess.FollowupMessageCreate(inter, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Files: []*discordgo.File{{
			Name:        filename,
			ContentType: "image/png",
			Reader:      bytes.NewReader(image),
		}},
	})
	if err != nil {
		log.Printf("bot: image followup: %v", err)
	}
}
