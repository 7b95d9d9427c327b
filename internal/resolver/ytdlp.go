package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"

	"github.com/cadencebot/cadence/internal/cache"
	"github.com/cadencebot/cadence/internal/player"
	"github.com/cadencebot/cadence/internal/probe"
)

const audioFormat = "ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best"

var installOnce sync.Once

// Resolver turns user queries (URLs, search terms, Spotify links) into
// playback entries and fetches their media into the file cache.
type Resolver struct {
	cache         *cache.FileCache
	spotify       *SpotifyClient
	playlistLimit int
}

func New(c *cache.FileCache, sp *SpotifyClient, playlistLimit int) *Resolver {
	if playlistLimit <= 0 {
		playlistLimit = 50
	}
	return &Resolver{cache: c, spotify: sp, playlistLimit: playlistLimit}
}

// Resolve expands a query into one or more entries. Spotify links are
// translated into search terms; bare text becomes a single search; anything
// else goes straight to the extractor.
func (r *Resolver) Resolve(ctx context.Context, query string, requestedBy string) ([]*player.Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("resolve: empty query")
	}

	if r.spotify != nil && isSpotifyRef(query) {
		terms, err := r.spotify.SearchTerms(ctx, query, r.playlistLimit)
		if err != nil {
			return nil, fmt.Errorf("resolve spotify link: %w", err)
		}
		entries := make([]*player.Entry, 0, len(terms))
		for _, term := range terms {
			got, err := r.extract(ctx, "ytsearch1:"+term, requestedBy)
			if err != nil {
				slog.Warn("skipping unresolvable spotify track", "term", term, "err", err)
				continue
			}
			entries = append(entries, got...)
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("resolve spotify link: no playable tracks")
		}
		return entries, nil
	}

	if !strings.HasPrefix(query, "http://") && !strings.HasPrefix(query, "https://") {
		query = "ytsearch1:" + query
	}
	return r.extract(ctx, query, requestedBy)
}

func isSpotifyRef(q string) bool {
	return strings.HasPrefix(q, "spotify:") || strings.Contains(q, "open.spotify.com")
}

// extract runs yt-dlp metadata extraction without downloading media.
func (r *Resolver) extract(ctx context.Context, target, requestedBy string) ([]*player.Entry, error) {
	installOnce.Do(func() { ytdlp.MustInstall(ctx, nil) })

	cmd := ytdlp.New().
		Format(audioFormat).
		NoCheckCertificates().
		DumpJSON()

	res, err := cmd.Run(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp run: %w", err)
	}
	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("parse yt-dlp json: no info returned")
	}

	ext := infos[0]
	if len(ext.Entries) > 0 {
		out := make([]*player.Entry, 0, len(ext.Entries))
		for i, e := range ext.Entries {
			if e == nil {
				continue
			}
			if r.playlistLimit > 0 && i >= r.playlistLimit {
				break
			}
			out = append(out, infoToEntry(e, requestedBy))
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("playlist contained no playable entries")
		}
		return out, nil
	}
	return []*player.Entry{infoToEntry(ext, requestedBy)}, nil
}

func infoToEntry(e *ytdlp.ExtractedInfo, requestedBy string) *player.Entry {
	entry := &player.Entry{
		URL:         derefS(e.WebpageURL),
		Title:       derefS(e.Title),
		Artist:      derefS(e.Uploader),
		IsLive:      derefB(e.IsLive),
		RequestedBy: requestedBy,
	}
	if entry.URL == "" {
		entry.URL = derefS(e.URL)
	}
	if entry.Title == "" {
		entry.Title = entry.URL
	}
	if d := derefF(e.Duration); d > 0 {
		entry.Duration = int(d)
	}
	for _, t := range e.Thumbnails {
		if t != nil && t.URL != "" {
			entry.Thumbnail = t.URL
			break
		}
	}
	if entry.IsLive {
		// live streams play from a direct media URL; no download step
		if u := derefS(e.URL); strings.HasPrefix(u, "http") {
			entry.Filename = u
		} else {
			entry.Filename = entry.URL
		}
	}
	return entry
}

// Fetch downloads an entry's media into the cache and returns its local
// path. Live entries already carry a playable URL and are returned as-is.
func (r *Resolver) Fetch(ctx context.Context, e *player.Entry) (string, error) {
	if e.IsLive {
		return e.Filename, nil
	}
	hash := r.cache.HashKey(e.URL)
	if p, ok := r.cache.Get(ctx, hash); ok {
		slog.Debug("cache hit", "url", e.URL, "path", p)
		return p, nil
	}

	dest := r.cache.PathFor(hash)
	cmd := ytdlp.New().
		Format(audioFormat).
		NoCheckCertificates().
		Output(dest)

	start := time.Now()
	if _, err := cmd.Run(ctx, e.URL); err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	slog.Debug("downloaded media", "url", e.URL, "took", time.Since(start))

	path, err := r.cache.Adopt(ctx, e.URL, dest)
	if err != nil {
		return "", fmt.Errorf("cache media: %w", err)
	}

	if e.Duration == 0 {
		if d, err := probe.Duration(path); err == nil && d > 0 {
			e.Duration = int(d.Seconds())
		}
	}
	return path, nil
}

func derefS(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefF(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefB(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}
