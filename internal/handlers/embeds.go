package handlers

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/cadencebot/cadence/internal/player"
	"github.com/cadencebot/cadence/internal/utils"
)

func songLink(e *player.Entry) string {
	title := utils.EscapeMd(e.Title)
	if e.URL == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, e.URL)
}

func buildPlayingEmbed(p *player.Player) *discordgo.MessageEmbed {
	cur := p.CurrentEntry()
	if cur == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "The queue is empty.",
			Color:       0x992222,
		}
	}

	pos := p.Progress()
	progress := 0.0
	if cur.Duration > 0 {
		progress = float64(pos) / float64(cur.Duration)
	}
	bar := utils.ProgressBar(10, progress)
	elapsed := "live"
	if !cur.IsLive {
		elapsed = fmt.Sprintf("%s/%s", utils.PrettyTime(pos), utils.PrettyTime(cur.Duration))
	}

	button := "⏹️"
	title := "Now Playing"
	color := 0x006400
	if p.State() == player.StatePaused {
		button = "▶️"
		title = "Paused"
		color = 0x8B0000
	}

	desc := fmt.Sprintf("**%s**\nRequested by: <@%s>\n\n%s %s `[ %s ]`",
		songLink(cur), cur.RequestedBy, button, bar, elapsed)

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       color,
	}
	if cur.Artist != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: "Source: " + cur.Artist,
		}
	}
	if cur.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cur.Thumbnail}
	}
	return embed
}

const queueEmbedLimit = 10

func buildQueueEmbed(p *player.Player, entries []*player.Entry) *discordgo.MessageEmbed {
	var sb strings.Builder
	if p != nil {
		if cur := p.CurrentEntry(); cur != nil {
			fmt.Fprintf(&sb, "**Now:** %s\n\n", songLink(cur))
		}
	}
	if len(entries) == 0 {
		sb.WriteString("The queue is empty.")
	}
	for n, e := range entries {
		if n >= queueEmbedLimit {
			fmt.Fprintf(&sb, "…and %d more\n", len(entries)-queueEmbedLimit)
			break
		}
		dur := "live"
		if !e.IsLive {
			dur = utils.PrettyTime(e.Duration)
		}
		fmt.Fprintf(&sb, "%d. %s `[%s]`\n", n+1, songLink(e), dur)
	}
	return &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: sb.String(),
		Color:       0x006400,
	}
}
