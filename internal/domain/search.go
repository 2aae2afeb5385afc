package domain

import (
	"net/url"
	"strconv"
	"strings"
)

type SortKey string

const (
	SortByID        SortKey = "id"
	SortBySize      SortKey = "size"
	SortByComments  SortKey = "comments"
	SortBySeeders   SortKey = "seeders"
	SortByLeechers  SortKey = "leechers"
	SortByDownloads SortKey = "downloads"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// QualityFilter codes as they arrive from the listing form.
const (
	QualityNone         = "0"
	QualityNoRemakes    = "1"
	QualityTrustedOnly  = "2"
	QualityCompleteOnly = "3"
)

// MaxPageNumber is the hard ceiling on requested page numbers.
const MaxPageNumber int64 = 1<<32 - 1

// SearchRequest carries already-parsed listing parameters. Empty strings mean
// "not supplied" and take the listing defaults (category 0_0, filter 0, id desc).
type SearchRequest struct {
	Term          string
	Category      string
	QualityFilter string
	UploaderID    UserID
	SortKey       string
	SortOrder     string
	Page          int64
	PerPage       int
	IsRSS         bool
}

// RSSQuery returns the query string that reproduces this listing as a feed.
func (r SearchRequest) RSSQuery() string {
	values := url.Values{}
	values.Set("page", "rss")
	if term := strings.TrimSpace(r.Term); term != "" {
		values.Set("q", term)
	}
	if category := strings.TrimSpace(r.Category); category != "" && category != "0_0" {
		values.Set("c", category)
	}
	if filter := strings.TrimSpace(r.QualityFilter); filter != "" && filter != QualityNone {
		values.Set("f", filter)
	}
	if r.UploaderID != 0 {
		values.Set("u", strconv.FormatInt(int64(r.UploaderID), 10))
	}
	return values.Encode()
}

// Page is one slice of an ordered result set. In RSS mode TotalCount, Page and
// PerPage are zero: feeds carry no pagination metadata.
type Page struct {
	Items         []TorrentView `json:"items"`
	TotalCount    int64         `json:"totalCount"`
	Page          int64         `json:"page"`
	PerPage       int           `json:"perPage"`
	RSS           bool          `json:"rss"`
	Backend       string        `json:"backend"`
	InfoHashMatch *TorrentView  `json:"infoHashMatch,omitempty"`
	// FirstWordUser is set when the first word of the term names a user;
	// QuerySansUser is the rest of the term, for a "search their uploads" link.
	FirstWordUser *User  `json:"firstWordUser,omitempty"`
	QuerySansUser string `json:"querySansUser,omitempty"`
	RSSQuery      string        `json:"rssQuery,omitempty"`
}

func (p Page) PageCount() int64 {
	if p.PerPage <= 0 || p.TotalCount <= 0 {
		return 0
	}
	return (p.TotalCount + int64(p.PerPage) - 1) / int64(p.PerPage)
}

func (p Page) HasMore() bool {
	return !p.RSS && p.Page < p.PageCount()
}
