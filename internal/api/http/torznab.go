package apihttp

import (
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"torrentstream/catalog/internal/domain"
)

const (
	torznabNamespace    = "http://torznab.com/schemas/2015/feed"
	torznabDefaultLimit = 75
	torznabMaxLimit     = 100
	// torznabSiteBase offsets site categories into the indexer-specific range.
	torznabSiteBase = 100000
)

// Torznab error codes used by this endpoint.
const (
	torznabRegistrationDenied = 103
	torznabIncorrectParameter = 201
	torznabNoSuchFunction     = 202
	torznabNotAvailable       = 203
	torznabUnknownError       = 900
)

var torznabErrorText = map[int]string{
	torznabRegistrationDenied: "Registration denied",
	torznabIncorrectParameter: "Incorrect parameter",
	torznabNoSuchFunction:     "No such function. (Function not defined in this specification)",
	torznabNotAvailable:       "Function not available. (Optional function is not implemented)",
	torznabUnknownError:       "Unknown error",
}

type torznabCategory struct {
	ID   int
	Name string
	// Site lists the site categories, as torznabSiteBase+main*100+sub, that
	// fall under this generic category.
	Site []int
}

var torznabCategories = []torznabCategory{
	{3000, "Audio", []int{100201, 100202}},
	{3010, "Audio/MP3", nil},
	{3040, "Audio/Lossless", []int{100201}},
	{3060, "Audio/Other", []int{100202}},
	{4000, "PC", []int{100602}},
	{4050, "PC/Games", []int{100602}},
	{5000, "TV", []int{100102}},
	{5070, "TV/Anime", []int{100102}},
	{7000, "Books", []int{100301, 100302}},
	{7020, "Books/EBook", []int{100301}},
	{7620, "Books/Foreign", []int{100302}},
}

// categoriesFor lists the torznab categories of one torrent: the bare site
// pair, the generic categories covering it, then the site-specific range.
func categoriesFor(c domain.Category) []int {
	site := torznabSiteBase + c.MainID*100 + c.SubID
	out := []int{c.MainID*100 + c.SubID}
	for _, cat := range torznabCategories {
		for _, s := range cat.Site {
			if s == site {
				out = append(out, cat.ID)
				break
			}
		}
	}
	if c.SubID > 0 {
		out = append(out, torznabSiteBase+c.MainID*100)
	}
	return append(out, site)
}

func (s *Server) handleTorznab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	switch mode := query.Get("t"); mode {
	case "caps":
		writeXML(w, torznabCaps(s.feed.Title))
	case "search", "tvsearch":
		s.torznabSearch(w, r, query)
	case "register":
		writeTorznabError(w, torznabRegistrationDenied)
	case "movie", "music", "book", "details", "getnfo", "get",
		"cartadd", "cartdel", "comments", "commentadd", "user":
		writeTorznabError(w, torznabNotAvailable)
	default:
		writeTorznabError(w, torznabNoSuchFunction)
	}
}

func (s *Server) torznabSearch(w http.ResponseWriter, r *http.Request, query url.Values) {
	// Episode-level lookups would need metadata the catalog does not keep.
	if query.Get("season") != "" || query.Get("ep") != "" || query.Get("rid") != "" {
		writeTorznabError(w, torznabIncorrectParameter)
		return
	}
	offset, err := intParam(query, "offset", 0)
	if err != nil || offset < 0 {
		writeTorznabError(w, torznabIncorrectParameter)
		return
	}
	limit, err := intParam(query, "limit", torznabDefaultLimit)
	if err != nil || limit <= 0 {
		writeTorznabError(w, torznabIncorrectParameter)
		return
	}
	limit = min(limit, torznabMaxLimit)
	if len(query.Get("q")) > maxQueryLength {
		writeTorznabError(w, torznabIncorrectParameter)
		return
	}

	// Clients page by offset; the engine pages by page number, so offsets
	// round down to a page boundary.
	req := domain.SearchRequest{
		Term:    query.Get("q"),
		Page:    int64(1 + offset/limit),
		PerPage: limit,
	}
	page, err := s.search.Search(r.Context(), req, viewerFromRequest(r))
	if err != nil {
		s.log.Debug().Err(err).Str("q", req.Term).Msg("torznab search failed")
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeTorznabError(w, torznabIncorrectParameter)
			return
		}
		writeTorznabError(w, torznabUnknownError)
		return
	}
	extended := query.Get("extended") == "1"
	writeXML(w, torznabFeed(s.feed, req, page, extended))
}

func intParam(query url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

type torznabError struct {
	XMLName     xml.Name `xml:"error"`
	Code        int      `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

// writeTorznabError answers 200 with an error document, which is how
// newznab clients expect failures.
func writeTorznabError(w http.ResponseWriter, code int) {
	writeXML(w, torznabError{Code: code, Description: torznabErrorText[code]})
}

type capsDocument struct {
	XMLName    xml.Name       `xml:"caps"`
	Server     capsServer     `xml:"server"`
	Limits     capsLimits     `xml:"limits"`
	Searching  capsSearching  `xml:"searching"`
	Categories []capsCategory `xml:"categories>category"`
}

type capsServer struct {
	Title string `xml:"title,attr"`
}

type capsLimits struct {
	Max     int `xml:"max,attr"`
	Default int `xml:"default,attr"`
}

type capsSearch struct {
	Available       string `xml:"available,attr"`
	SupportedParams string `xml:"supportedParams,attr"`
}

type capsSearching struct {
	Search      capsSearch `xml:"search"`
	TVSearch    capsSearch `xml:"tv-search"`
	MovieSearch capsSearch `xml:"movie-search"`
}

type capsCategory struct {
	ID     int          `xml:"id,attr"`
	Name   string       `xml:"name,attr"`
	Subcat []capsSubcat `xml:"subcat"`
}

type capsSubcat struct {
	ID   int    `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

func torznabCaps(title string) capsDocument {
	doc := capsDocument{
		Server: capsServer{Title: title},
		Limits: capsLimits{Max: torznabMaxLimit, Default: torznabDefaultLimit},
		Searching: capsSearching{
			Search:      capsSearch{Available: "yes", SupportedParams: "q"},
			TVSearch:    capsSearch{Available: "yes", SupportedParams: "q"},
			MovieSearch: capsSearch{Available: "no", SupportedParams: "q"},
		},
	}
	// Generic categories are thousands; their subcategories share the prefix.
	parents := map[int]int{}
	for _, cat := range torznabCategories {
		if cat.ID%1000 == 0 {
			parents[cat.ID] = len(doc.Categories)
			doc.Categories = append(doc.Categories, capsCategory{ID: cat.ID, Name: cat.Name})
			continue
		}
		if i, ok := parents[cat.ID/1000*1000]; ok {
			doc.Categories[i].Subcat = append(doc.Categories[i].Subcat, capsSubcat{ID: cat.ID, Name: cat.Name})
		}
	}
	return doc
}

type torznabDocument struct {
	XMLName   xml.Name       `xml:"rss"`
	Version   string         `xml:"version,attr"`
	Namespace string         `xml:"xmlns:torznab,attr"`
	Channel   torznabChannel `xml:"channel"`
}

type torznabChannel struct {
	Title       string          `xml:"title"`
	Link        string          `xml:"link"`
	Description string          `xml:"description"`
	Response    torznabResponse `xml:"torznab:response"`
	Items       []torznabItem   `xml:"item"`
}

type torznabResponse struct {
	Offset int   `xml:"offset,attr"`
	Total  int64 `xml:"total,attr"`
}

type torznabEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type torznabItem struct {
	Title     string           `xml:"title"`
	GUID      string           `xml:"guid"`
	Link      string           `xml:"link"`
	Comments  string           `xml:"comments"`
	PubDate   string           `xml:"pubDate"`
	Size      int64            `xml:"size"`
	Enclosure torznabEnclosure `xml:"enclosure"`
	Attrs     []torznabAttr    `xml:"torznab:attr"`
}

func torznabFeed(cfg FeedConfig, req domain.SearchRequest, page domain.Page, extended bool) torznabDocument {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	doc := torznabDocument{
		Version:   "2.0",
		Namespace: torznabNamespace,
		Channel: torznabChannel{
			Title:       feedTitle(cfg.Title, req.Term),
			Link:        base + "/",
			Description: "Torznab feed for " + feedTitle(cfg.Title, req.Term),
			Response:    torznabResponse{Offset: int(req.Page-1) * req.PerPage, Total: page.TotalCount},
			Items:       make([]torznabItem, 0, len(page.Items)),
		},
	}
	for _, view := range page.Items {
		doc.Channel.Items = append(doc.Channel.Items, torznabEntry(base, view, extended))
	}
	return doc
}

func torznabEntry(base string, view domain.TorrentView, extended bool) torznabItem {
	download := downloadURL(base, view.ID)
	attrs := make([]torznabAttr, 0, 10)
	for _, cat := range categoriesFor(view.Category) {
		attrs = append(attrs, torznabAttr{Name: "category", Value: strconv.Itoa(cat)})
	}
	attrs = append(attrs,
		torznabAttr{Name: "seeders", Value: strconv.Itoa(view.Stats.Seeders)},
		torznabAttr{Name: "peers", Value: strconv.Itoa(view.Stats.Seeders + view.Stats.Leechers)},
		torznabAttr{Name: "infohash", Value: strings.ToLower(view.InfoHash)},
	)
	if extended {
		attrs = append(attrs,
			torznabAttr{Name: "leechers", Value: strconv.Itoa(view.Stats.Leechers)},
			torznabAttr{Name: "grabs", Value: strconv.Itoa(view.Stats.Downloads)},
			torznabAttr{Name: "size", Value: strconv.FormatInt(view.SizeBytes, 10)},
			torznabAttr{Name: "downloadvolumefactor", Value: "0"},
			torznabAttr{Name: "uploadvolumefactor", Value: "1"},
		)
	}
	return torznabItem{
		Title:     view.DisplayName,
		GUID:      viewURL(base, view.ID),
		Link:      download,
		Comments:  viewURL(base, view.ID),
		PubDate:   view.CreatedAt.UTC().Format(time.RFC1123Z),
		Size:      view.SizeBytes,
		Enclosure: torznabEnclosure{URL: download, Length: view.SizeBytes, Type: "application/x-bittorrent"},
		Attrs:     attrs,
	}
}

func writeXML(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	_ = enc.Encode(payload)
}
