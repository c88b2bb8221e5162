package cafe

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"cafe_notifier/internal/domain"
)

// UntitledPlaceholder is used when a scraped page has no recognisable title.
const UntitledPlaceholder = "(no title)"

var errNoIDInPage = errors.New("no article id pattern matched")

// Patterns are tried in order; the first one that matches wins.
var (
	idPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"articleId"\s*:\s*"?(\d+)`),
		regexp.MustCompile(`(?i)articleid=(\d+)`),
		regexp.MustCompile(`data-article-id="(\d+)"`),
	}
	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`"subject"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		regexp.MustCompile(`(?s)class="article"[^>]*>(.*?)</a>`),
		regexp.MustCompile(`<meta property="og:title" content="([^"]*)"`),
	}
)

// scrapeStrategy mines the board page markup. It is best effort: any markup change upstream
// makes it return nothing.
type scrapeStrategy struct {
	client *client
}

func (s *scrapeStrategy) name() string { return domain.StrategyScrape }

func (s *scrapeStrategy) latest(ctx context.Context, board domain.BoardConfig) (*domain.LatestPost, error) {
	body, err := s.client.get(ctx, board.PageURL, board.Referer, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}
	return parsePage(string(body))
}

func parsePage(page string) (*domain.LatestPost, error) {
	var id int64
	found := false
	for _, re := range idPatterns {
		if m := re.FindStringSubmatch(page); m != nil {
			parsed, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			id, found = parsed, true
			break
		}
	}
	if !found {
		return nil, errNoIDInPage
	}

	title := UntitledPlaceholder
	for _, re := range titlePatterns {
		if m := re.FindStringSubmatch(page); m != nil {
			if t := cleanTitle(m[1]); t != "" {
				title = t
				break
			}
		}
	}

	return &domain.LatestPost{ID: id, Title: title}, nil
}

// cleanTitle drops markup and decodes entities from a scraped fragment.
func cleanTitle(fragment string) string {
	fragment = strings.ReplaceAll(fragment, `\"`, `"`)

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}
