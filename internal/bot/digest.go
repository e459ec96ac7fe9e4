package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"github.com/zulandar/atelier/internal/usage"
	"gorm.io/gorm"
)

const colorDigest = 0x3498db

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// runDigestLoop posts a usage digest to the configured channel on the cron
// schedule, until ctx is cancelled.
func (d *Daemon) runDigestLoop(ctx context.Context) {
	wait := nextCronDuration(d.cfg.Digest.Schedule)
	if wait == 0 {
		log.Printf("bot: digest: invalid schedule %q, digest disabled", d.cfg.Digest.Schedule)
		return
	}
	log.Printf("bot: digest: next post in %s", wait.Round(time.Second))

	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := d.postDigest(); err != nil {
			log.Printf("bot: digest: %v", err)
		}

		wait = nextCronDuration(d.cfg.Digest.Schedule)
		if wait == 0 {
			wait = 24 * time.Hour
		}
	}
}

// postDigest builds and posts the daily digest. A period with no activity
// posts nothing.
func (d *Daemon) postDigest() error {
	embed, err := buildDigest(d.db, time.Now().UTC())
	if err != nil {
		return err
	}
	if embed == nil {
		log.Printf("bot: digest: no activity, skipping")
		return nil
	}

	_, err = d.sess.ChannelMessageSendComplex(d.cfg.Digest.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("post digest: %w", err)
	}
	return nil
}

// buildDigest computes the last-24h usage report and formats it as an
// embed. Returns nil when there was no activity.
func buildDigest(db *gorm.DB, now time.Time) (*discordgo.MessageEmbed, error) {
	report, err := usage.Stats(db, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("build digest: %w", err)
	}
	if report.Generations == 0 {
		return nil, nil
	}

	var bodyLines []string
	bodyLines = append(bodyLines, fmt.Sprintf("**Period**: %s – %s",
		report.PeriodStart.Format("Jan 2 15:04"),
		report.PeriodEnd.Format("Jan 2 15:04")))
	bodyLines = append(bodyLines, fmt.Sprintf("**Generations**: %d by %d users",
		report.Generations, report.UniqueUsers))
	if report.AvgLatencyMs > 0 {
		bodyLines = append(bodyLines, fmt.Sprintf("**Avg latency**: %s",
			(time.Duration(report.AvgLatencyMs)*time.Millisecond).Round(100*time.Millisecond)))
	}

	if len(report.ByModel) > 0 {
		bodyLines = append(bodyLines, "")
		bodyLines = append(bodyLines, "**Per model**:")
		for _, mc := range report.ByModel {
			bodyLines = append(bodyLines, fmt.Sprintf("  %s: %d", mc.Model, mc.Count))
		}
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Generations", Value: fmt.Sprintf("%d", report.Generations), Inline: true},
		{Name: "Users", Value: fmt.Sprintf("%d", report.UniqueUsers), Inline: true},
	}
	if len(report.TopUsers) > 0 {
		top := report.TopUsers[0]
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Top user",
			Value:  fmt.Sprintf("%s (%d)", top.Username, top.Count),
			Inline: true,
		})
	}

	return &discordgo.MessageEmbed{
		Title:       "Daily Usage Digest",
		Description: strings.Join(bodyLines, "\n"),
		Color:       colorDigest,
		Fields:      fields,
	}, nil
}
