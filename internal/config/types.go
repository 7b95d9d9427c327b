package config

type Config struct {
	DiscordToken        string
	SpotifyClientID     string
	SpotifyClientSecret string
	DataDir             string
	CacheDir            string
	CacheLimitBytes     int64
	DefaultVolume       int  // percent, 100 = unity gain
	SaveMedia           bool // keep downloaded files after playback
	DrawVolumeMeter     bool
	BotStatus           string // online/dnd/idle
	BotActivity         string
	PlaylistLimit       int
}
