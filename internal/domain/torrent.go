package domain

import (
	"fmt"
	"time"
)

type TorrentID int64

type UserID int64

// Category is a (main, sub) pair. Sub == 0 selects a whole main category.
type Category struct {
	MainID int `json:"mainId"`
	SubID  int `json:"subId"`
}

func (c Category) IsZero() bool {
	return c.MainID == 0
}

func (c Category) WholeMain() bool {
	return c.SubID == 0
}

func (c Category) String() string {
	return fmt.Sprintf("%d_%d", c.MainID, c.SubID)
}

// User is the public face of an account.
type User struct {
	ID        UserID `json:"id"`
	Name      string `json:"name"`
	IsTrusted bool   `json:"trusted"`
}

type Torrent struct {
	ID           TorrentID `json:"id"`
	InfoHash     string    `json:"infoHash"`
	DisplayName  string    `json:"name"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
	UploaderID   UserID    `json:"uploaderId,omitempty"` // 0 when the uploader is unknown
	Category     Category  `json:"category"`
	Flags        Flags     `json:"flags"`
	CommentCount int       `json:"commentCount"`
}

// Statistics is owned by its torrent and removed with it.
type Statistics struct {
	TorrentID     TorrentID  `json:"-"`
	Seeders       int        `json:"seeders"`
	Leechers      int        `json:"leechers"`
	Downloads     int        `json:"downloads"`
	LastUpdatedAt *time.Time `json:"lastUpdatedAt,omitempty"`
}

// TorrentView is the row shape every executor returns, whichever backend served it.
type TorrentView struct {
	Torrent
	Stats     Statistics `json:"stats"`
	Highlight string     `json:"highlight,omitempty"`
}
