package handlers

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/cadencebot/cadence/internal/config"
	"github.com/cadencebot/cadence/internal/decode"
	"github.com/cadencebot/cadence/internal/player"
	"github.com/cadencebot/cadence/internal/queue"
	"github.com/cadencebot/cadence/internal/repository"
	"github.com/cadencebot/cadence/internal/resolver"
	"github.com/cadencebot/cadence/internal/stream"
	"github.com/cadencebot/cadence/internal/transport"
)

type Bot struct {
	cfg     *config.Config
	repo    *repository.Repo
	res     *resolver.Resolver
	manager *player.Manager
	runner  *decode.Runner

	mu     sync.Mutex
	queues map[string]*queue.Queue
	voices map[string]*transport.Voice
}

func NewBot(cfg *config.Config, repo *repository.Repo, res *resolver.Resolver) *Bot {
	return &Bot{
		cfg:     cfg,
		repo:    repo,
		res:     res,
		manager: player.NewManager(),
		runner:  decode.NewRunner(decode.Options{NoStdin: true, AudioOnly: true}),
		queues:  make(map[string]*queue.Queue),
		voices:  make(map[string]*transport.Voice),
	}
}

func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", s.State.User.Username)
		status := discordgo.UpdateStatusData{Status: b.cfg.BotStatus}
		if b.cfg.BotActivity != "" {
			status.Activities = []*discordgo.Activity{{
				Name: b.cfg.BotActivity,
				Type: discordgo.ActivityTypeListening,
			}}
		}
		if err := s.UpdateStatusComplex(status); err != nil {
			slog.Warn("update presence", "err", err)
		}
		if err := b.registerCommands(s, s.State.User.ID); err != nil {
			slog.Error("register application commands", "err", err)
		}
	})

	dg.AddHandler(b.handleInteraction)

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	<-ctx.Done()
	b.shutdown()
	return nil
}

// shutdown persists every live player's queue so a restart can pick up where
// it left off, then kills the players.
func (b *Bot) shutdown() {
	ctx := context.Background()
	for guildID, p := range b.manager.All() {
		data, err := p.MarshalState()
		if err != nil {
			slog.Error("snapshot player state", "guildID", guildID, "err", err)
		} else if err := b.repo.SaveSession(ctx, guildID, data); err != nil {
			slog.Error("persist player state", "guildID", guildID, "err", err)
		} else {
			slog.Info("persisted player state", "guildID", guildID)
		}
		p.Kill()
	}
}

func (b *Bot) queueFor(guildID string) *queue.Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[guildID]
	if !ok {
		q = queue.New()
		b.queues[guildID] = q
	}
	return q
}

func (b *Bot) voiceFor(s *discordgo.Session, guildID string) *transport.Voice {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.voices[guildID]
	if !ok {
		v = transport.NewVoice(s, guildID)
		b.voices[guildID] = v
	}
	return v
}

// playerFor returns the guild's player, building it on first use. A session
// persisted by a previous run is restored into the fresh queue, with the
// interrupted entry back at the front.
func (b *Bot) playerFor(s *discordgo.Session, guildID string) (*player.Player, error) {
	return b.manager.GetOrCreate(guildID, func() (*player.Player, error) {
		ctx := context.Background()
		q := b.queueFor(guildID)
		v := b.voiceFor(s, guildID)

		gain := float64(b.cfg.DefaultVolume) / 100
		saveMedia := b.cfg.SaveMedia
		if set, err := b.repo.UpsertSettings(ctx, guildID); err == nil && set != nil {
			if set.DefaultVolume > 0 {
				gain = float64(set.DefaultVolume) / 100
			}
			saveMedia = set.SaveMedia
		}

		opts := player.Options{
			GuildID:      guildID,
			Queue:        q,
			Transport:    v,
			DefaultGain:  gain,
			SaveMedia:    saveMedia,
			StartProcess: b.startProcess,
			NewEncoder:   stream.NewOpusEncoder,
		}
		if b.cfg.DrawVolumeMeter {
			opts.MeterWriter = os.Stdout
		}

		if data, err := b.repo.GetSession(ctx, guildID); err == nil && data != nil {
			p, err := player.Restore(data, opts)
			if err != nil {
				slog.Warn("could not restore persisted session, starting fresh",
					"guildID", guildID, "err", err)
				return player.New(opts)
			}
			_ = b.repo.DeleteSession(ctx, guildID)
			// restored entries lost their local files if media saving is
			// off; refetch in the background
			for _, e := range q.Entries() {
				if e.Filename == "" {
					go b.fetchEntry(q, e)
				}
			}
			slog.Info("restored persisted session", "guildID", guildID)
			return p, nil
		}
		return player.New(opts)
	})
}

func (b *Bot) startProcess(ctx context.Context, input string) (player.Process, error) {
	return b.runner.Start(ctx, input)
}

// fetchEntry downloads an entry's media and marks it playable, dropping the
// entry if the download fails so it cannot wedge the queue.
func (b *Bot) fetchEntry(q *queue.Queue, e *player.Entry) {
	path, err := b.res.Fetch(context.Background(), e)
	if err != nil {
		slog.Error("media download failed, dropping entry",
			"title", e.Title, "url", e.URL, "err", err)
		q.Drop(e)
		return
	}
	q.MarkReady(e, path)
}
