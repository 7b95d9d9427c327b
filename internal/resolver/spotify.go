package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// SpotifyClient looks tracks up on Spotify so their titles can be fed to the
// audio extractor as search terms. Spotify itself never serves audio here.
type SpotifyClient struct {
	raw *spotify.Client
}

func NewSpotifyClient(clientID, clientSecret string) (*SpotifyClient, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("spotify: client credentials required")
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	cl := spotify.New(cfg.Client(context.Background()), spotify.WithRetry(true))
	return &SpotifyClient{raw: cl}, nil
}

func parseSpotifyID(raw string) (typ string, id spotify.ID, err error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) == 3 {
			return parts[1], spotify.ID(parts[2]), nil
		}
		return "", "", fmt.Errorf("invalid spotify URI")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
		return "", "", fmt.Errorf("not a spotify URL")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid spotify URL path")
	}
	switch parts[0] {
	case "album", "playlist", "track", "artist":
		return parts[0], spotify.ID(parts[1]), nil
	}
	return "", "", fmt.Errorf("unsupported spotify type %q", parts[0])
}

// SearchTerms resolves a Spotify link into "artist title" search strings,
// one per track, capped at limit for albums and playlists.
func (c *SpotifyClient) SearchTerms(ctx context.Context, ref string, limit int) ([]string, error) {
	typ, id, err := parseSpotifyID(ref)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "track":
		t, err := c.raw.GetTrack(ctx, id)
		if err != nil {
			return nil, err
		}
		return []string{termFor(t.Name, t.Artists)}, nil
	case "album":
		page, err := c.raw.GetAlbumTracks(ctx, id)
		if err != nil {
			return nil, err
		}
		var out []string
		for {
			for _, t := range page.Tracks {
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
				out = append(out, termFor(t.Name, t.Artists))
			}
			if page.Next == "" {
				return out, nil
			}
			if err := c.raw.NextPage(ctx, page); err != nil {
				return out, nil
			}
		}
	case "playlist":
		page, err := c.raw.GetPlaylistItems(ctx, id)
		if err != nil {
			return nil, err
		}
		var out []string
		for {
			for _, it := range page.Items {
				if it.Track.Track == nil {
					continue
				}
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
				t := it.Track.Track
				out = append(out, termFor(t.Name, t.Artists))
			}
			if page.Next == "" {
				return out, nil
			}
			if err := c.raw.NextPage(ctx, page); err != nil {
				return out, nil
			}
		}
	case "artist":
		tracks, err := c.raw.GetArtistsTopTracks(ctx, id, "US")
		if err != nil {
			return nil, err
		}
		var out []string
		for _, t := range tracks {
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, termFor(t.Name, t.Artists))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported spotify type %q", typ)
}

func termFor(name string, artists []spotify.SimpleArtist) string {
	if len(artists) > 0 {
		return artists[0].Name + " " + name
	}
	return name
}
