package domain

import (
	"strconv"
	"strings"
	"time"
)

// Fetch strategies a board can be configured with.
const (
	StrategyAPI    = "api"
	StrategyScrape = "scrape"
)

// BoardConfig describes one monitored board. It is built once from config and never mutated.
type BoardConfig struct {
	Key         string
	DisplayName string
	Strategy    string
	ClubID      string
	MenuID      string
	PageURL     string
	Referer     string
	LinkBase    string
}

// Link returns the canonical link for a post on this board.
// It depends only on the post id, so edited titles never look like new posts.
func (b BoardConfig) Link(id int64) string {
	return strings.TrimRight(b.LinkBase, "/") + "/" + strconv.FormatInt(id, 10)
}

// LatestPost is the most recent post a fetcher found on a board.
type LatestPost struct {
	ID    int64
	Title string
}

// DisplayTitle returns the title cut to max runes, with an ellipsis when truncated.
func (p LatestPost) DisplayTitle(max int) string {
	return Truncate(p.Title, max, "…")
}

// Truncate cuts s to at most max runes and appends marker when anything was removed.
func Truncate(s string, max int, marker string) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + marker
}

// Announcement is one new-post notification.
type Announcement struct {
	BoardKey  string    `json:"board_key"`
	BoardName string    `json:"board_name"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	SentAt    time.Time `json:"sent_at"`
}

// Heading renders the message title, e.g. "[Notice] Server maintenance".
func (a Announcement) Heading() string {
	return "[" + a.BoardName + "] " + a.Title
}
