package apihttp

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"

	"torrentstream/catalog/internal/domain"
)

type FeedConfig struct {
	Title string
	// BaseURL is the public site root used for item and channel links.
	BaseURL  string
	Trackers []string
}

func defaultFeedConfig() FeedConfig {
	return FeedConfig{
		Title:   "Torrent catalog",
		BaseURL: "http://localhost:8080",
	}
}

const catalogNamespace = "https://torrentstream.local/xmlns/catalog"

type rssDocument struct {
	XMLName   xml.Name   `xml:"rss"`
	Version   string     `xml:"version,attr"`
	Namespace string     `xml:"xmlns:catalog,attr"`
	Channel   rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssItem struct {
	Title     string  `xml:"title"`
	Link      string  `xml:"link"`
	GUID      rssGUID `xml:"guid"`
	PubDate   string  `xml:"pubDate"`
	Seeders   int     `xml:"catalog:seeders"`
	Leechers  int     `xml:"catalog:leechers"`
	Downloads int     `xml:"catalog:downloads"`
	InfoHash  string  `xml:"catalog:infoHash"`
	Category  string  `xml:"catalog:categoryId"`
	Size      string  `xml:"catalog:size"`
	Trusted   string  `xml:"catalog:trusted"`
	Remake    string  `xml:"catalog:remake"`
}

// writeFeed renders page as RSS 2.0. Items link to magnet URIs when magnets
// is set and to the .torrent download otherwise.
func writeFeed(w http.ResponseWriter, cfg FeedConfig, req domain.SearchRequest, page domain.Page, magnets bool) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	doc := rssDocument{
		Version:   "2.0",
		Namespace: catalogNamespace,
		Channel: rssChannel{
			Title:       feedTitle(cfg.Title, req.Term),
			Link:        base + "/?" + req.RSSQuery(),
			Description: "RSS feed for " + feedTitle(cfg.Title, req.Term),
			Items:       make([]rssItem, 0, len(page.Items)),
		},
	}
	for _, view := range page.Items {
		doc.Channel.Items = append(doc.Channel.Items, feedItem(cfg, base, view, magnets))
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	_ = enc.Encode(doc)
}

func feedTitle(title, term string) string {
	if term = strings.TrimSpace(term); term != "" {
		return title + " - " + term
	}
	return title
}

func feedItem(cfg FeedConfig, base string, view domain.TorrentView, magnets bool) rssItem {
	return rssItem{
		Title:     view.DisplayName,
		Link:      itemLink(cfg, base, view, magnets),
		GUID:      rssGUID{IsPermaLink: true, Value: viewURL(base, view.ID)},
		PubDate:   view.CreatedAt.UTC().Format(time.RFC1123Z),
		Seeders:   view.Stats.Seeders,
		Leechers:  view.Stats.Leechers,
		Downloads: view.Stats.Downloads,
		InfoHash:  strings.ToLower(view.InfoHash),
		Category:  view.Category.String(),
		Size:      humanSize(view.SizeBytes),
		Trusted:   yesNo(view.Flags.Has(domain.FlagTrusted)),
		Remake:    yesNo(view.Flags.Has(domain.FlagRemake)),
	}
}

// itemLink is the magnet URI when asked for and the hash parses, else the
// .torrent download.
func itemLink(cfg FeedConfig, base string, view domain.TorrentView, magnets bool) string {
	if magnets {
		if magnet, ok := magnetLink(view.InfoHash, view.DisplayName, cfg.Trackers); ok {
			return magnet
		}
	}
	return downloadURL(base, view.ID)
}

func viewURL(base string, id domain.TorrentID) string {
	return base + "/view/" + strconv.FormatInt(int64(id), 10)
}

func downloadURL(base string, id domain.TorrentID) string {
	return base + "/download/" + strconv.FormatInt(int64(id), 10) + ".torrent"
}

func magnetLink(infoHash, name string, trackers []string) (string, bool) {
	var hash metainfo.Hash
	if err := hash.FromHexString(infoHash); err != nil {
		return "", false
	}
	m := metainfo.Magnet{InfoHash: hash, DisplayName: name, Trackers: trackers}
	return m.String(), true
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
