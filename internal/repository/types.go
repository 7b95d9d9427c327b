package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

type Settings struct {
	GuildID               string
	DefaultVolume         int
	SaveMedia             bool
	SecondsWaitAfterEmpty int
}
