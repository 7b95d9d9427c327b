package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cadencebot/cadence/internal/utils"
)

func (b *Bot) registerCommands(s *discordgo.Session, appID string) error {
	start := time.Now()
	cmds := []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song (URL, search terms, or Spotify link)",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "query or URL", Type: discordgo.ApplicationCommandOptionString, Required: true},
				{Name: "immediate", Description: "add to front of queue", Type: discordgo.ApplicationCommandOptionBoolean},
			},
		},
		{Name: "pause", Description: "Pause playback"},
		{Name: "resume", Description: "Resume paused playback"},
		{Name: "skip", Description: "Skip the current song"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "queue", Description: "Show the queue"},
		{Name: "now-playing", Description: "Show the currently playing song"},
		{
			Name:        "volume",
			Description: "Set playback volume",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "percent", Description: "0-200, 100 is unity", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
			},
		},
		{Name: "disconnect", Description: "Stop and leave the voice channel"},
	}
	if _, err := s.ApplicationCommandBulkOverwrite(appID, "", cmds); err != nil {
		return err
	}
	slog.Info("registered application commands", "count", len(cmds), "took", time.Since(start))
	return nil
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	switch i.ApplicationCommandData().Name {
	case "play":
		b.cmdPlay(s, i)
	case "pause":
		b.cmdPause(s, i)
	case "resume":
		b.cmdResume(s, i)
	case "skip":
		b.cmdSkip(s, i)
	case "stop":
		b.cmdStop(s, i)
	case "queue":
		b.cmdQueue(s, i)
	case "now-playing":
		b.cmdNowPlaying(s, i)
	case "volume":
		b.cmdVolume(s, i)
	case "disconnect":
		b.cmdDisconnect(s, i)
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg},
	})
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
}

func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func followUp(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_, _ = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: msg})
}

// userVoiceChannel finds which voice channel the invoking user sits in.
func userVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	g, err := s.State.Guild(guildID)
	if err != nil || g == nil {
		return ""
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func optString(i *discordgo.InteractionCreate, name string) string {
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == name {
			return o.StringValue()
		}
	}
	return ""
}

func optBool(i *discordgo.InteractionCreate, name string) bool {
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == name {
			return o.BoolValue()
		}
	}
	return false
}

func optInt(i *discordgo.InteractionCreate, name string) (int64, bool) {
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == name {
			return o.IntValue(), true
		}
	}
	return 0, false
}

func (b *Bot) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID := i.GuildID
	userID := interactionUserID(i)
	channelID := userVoiceChannel(s, guildID, userID)
	if channelID == "" {
		respond(s, i, "Join a voice channel first.")
		return
	}
	query := optString(i, "query")
	immediate := optBool(i, "immediate")

	// resolving can take a while; acknowledge now, answer later
	deferResponse(s, i)

	p, err := b.playerFor(s, guildID)
	if err != nil {
		slog.Error("create player", "guildID", guildID, "err", err)
		followUp(s, i, "Something went wrong setting up playback.")
		return
	}
	v := b.voiceFor(s, guildID)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = v.Join(ctx, channelID)
	cancel()
	if err != nil {
		slog.Error("join voice channel", "guildID", guildID, "err", err)
		followUp(s, i, "Could not join your voice channel.")
		return
	}

	ctx, cancel = context.WithTimeout(context.Background(), 60*time.Second)
	entries, err := b.res.Resolve(ctx, query, userID)
	cancel()
	if err != nil {
		slog.Warn("resolve query", "query", query, "err", err)
		followUp(s, i, fmt.Sprintf("Nothing found for `%s`.", utils.EscapeMd(query)))
		return
	}

	q := b.queueFor(guildID)
	for _, e := range entries {
		if immediate {
			q.PushFront(e)
		} else {
			q.Add(e)
		}
		if e.Filename == "" {
			go b.fetchEntry(q, e)
		}
	}
	// PushFront bypasses entry-added autoplay; kick the player explicitly
	if immediate {
		p.Play()
	}

	if len(entries) == 1 {
		followUp(s, i, fmt.Sprintf("Queued **%s**.", utils.EscapeMd(entries[0].Title)))
	} else {
		followUp(s, i, fmt.Sprintf("Queued **%d** songs.", len(entries)))
	}
}

func (b *Bot) cmdPause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := b.manager.Peek(i.GuildID)
	if !ok {
		respond(s, i, "Nothing is playing.")
		return
	}
	if err := p.Pause(); err != nil {
		respond(s, i, "Nothing to pause right now.")
		return
	}
	respond(s, i, "Paused.")
}

func (b *Bot) cmdResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := b.manager.Peek(i.GuildID)
	if !ok {
		respond(s, i, "Nothing is paused.")
		return
	}
	if err := p.Resume(); err != nil {
		respond(s, i, "Nothing to resume right now.")
		return
	}
	respond(s, i, "Resumed.")
}

func (b *Bot) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := b.manager.Peek(i.GuildID)
	if !ok || p.CurrentEntry() == nil {
		respond(s, i, "Nothing is playing.")
		return
	}
	p.Skip()
	respond(s, i, "Skipped.")
}

func (b *Bot) cmdStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := b.manager.Peek(i.GuildID)
	if !ok {
		respond(s, i, "Nothing is playing.")
		return
	}
	b.queueFor(i.GuildID).Clear()
	p.Stop()
	respond(s, i, "Stopped and cleared the queue.")
}

func (b *Bot) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, _ := b.manager.Peek(i.GuildID)
	q := b.queueFor(i.GuildID)
	respondEmbed(s, i, buildQueueEmbed(p, q.Entries()))
}

func (b *Bot) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p, ok := b.manager.Peek(i.GuildID)
	if !ok {
		respond(s, i, "Nothing is playing.")
		return
	}
	respondEmbed(s, i, buildPlayingEmbed(p))
}

func (b *Bot) cmdVolume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pct, ok := optInt(i, "percent")
	if !ok || pct < 0 || pct > 200 {
		respond(s, i, "Volume must be between 0 and 200.")
		return
	}
	p, found := b.manager.Peek(i.GuildID)
	if !found {
		respond(s, i, "Nothing is playing.")
		return
	}
	p.SetVolume(float64(pct) / 100)

	set, err := b.repo.UpsertSettings(context.Background(), i.GuildID)
	if err == nil && set != nil {
		set.DefaultVolume = int(pct)
		if err := b.repo.UpdateSettings(context.Background(), set); err != nil {
			slog.Warn("persist volume setting", "guildID", i.GuildID, "err", err)
		}
	}
	respond(s, i, fmt.Sprintf("Volume set to %d%%.", pct))
}

func (b *Bot) cmdDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if p, ok := b.manager.Peek(i.GuildID); ok {
		b.queueFor(i.GuildID).Clear()
		p.Stop()
	}
	b.voiceFor(s, i.GuildID).Leave()
	respond(s, i, "Disconnected.")
}
