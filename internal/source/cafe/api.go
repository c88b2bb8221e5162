package cafe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"cafe_notifier/internal/domain"
)

var (
	errNoArticleList = errors.New("no article list in response")
	errNoArticleID   = errors.New("no article id in latest record")
)

// Field spellings seen in list responses.
var (
	idFields    = []string{"articleId", "articleid"}
	titleFields = []string{"subject", "Subject"}
	listFields  = []string{"articleList", "articles", "list"}
)

// apiStrategy reads the newest post from the JSON article list endpoint.
type apiStrategy struct {
	client  *client
	baseURL string
}

func (s *apiStrategy) name() string { return domain.StrategyAPI }

func (s *apiStrategy) latest(ctx context.Context, board domain.BoardConfig) (*domain.LatestPost, error) {
	q := url.Values{}
	q.Set("search.clubid", board.ClubID)
	q.Set("search.menuid", board.MenuID)
	q.Set("search.page", "1")
	q.Set("search.perPage", "1")
	q.Set("search.sortBy", "date")

	body, err := s.client.get(ctx, s.baseURL+"?"+q.Encode(), board.Referer, "application/json")
	if err != nil {
		return nil, err
	}

	return parseArticleList(body)
}

func parseArticleList(body []byte) (*domain.LatestPost, error) {
	top, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	list := knownArticleList(top)
	if list == nil {
		if list, err = firstRecordArray(body); err != nil {
			return nil, err
		}
	}
	if len(list) == 0 {
		return nil, errNoArticleList
	}

	record, ok := list[0].(map[string]any)
	if !ok {
		return nil, errNoArticleList
	}

	id, ok := articleID(record)
	if !ok {
		return nil, errNoArticleID
	}

	title, _ := firstString(record, titleFields)
	return &domain.LatestPost{ID: id, Title: strings.TrimSpace(title)}, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var top map[string]any
	if err := dec.Decode(&top); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if top == nil {
		return nil, errNoArticleList
	}
	return top, nil
}

// knownArticleList walks the known nesting shapes, deepest first.
func knownArticleList(top map[string]any) []any {
	levels := []map[string]any{top}
	if message, ok := top["message"].(map[string]any); ok {
		levels = append(levels, message)
		if result, ok := message["result"].(map[string]any); ok {
			levels = append(levels, result)
		}
	}

	for i := len(levels) - 1; i >= 0; i-- {
		for _, field := range listFields {
			if list, ok := levels[i][field].([]any); ok {
				return list
			}
		}
	}
	return nil
}

// firstRecordArray returns the first top-level array, in document order, whose first
// element carries an article id.
func firstRecordArray(body []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, errNoArticleList
	}

	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("decode response key: %w", err)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode response value: %w", err)
		}

		list, ok := value.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		if record, ok := list[0].(map[string]any); ok {
			if _, ok := articleID(record); ok {
				return list, nil
			}
		}
	}
	return nil, errNoArticleList
}

func articleID(record map[string]any) (int64, bool) {
	for _, field := range idFields {
		switch v := record[field].(type) {
		case json.Number:
			if id, err := v.Int64(); err == nil {
				return id, true
			}
		case string:
			id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err == nil {
				return id, true
			}
		}
	}
	return 0, false
}

func firstString(record map[string]any, fields []string) (string, bool) {
	for _, field := range fields {
		if v, ok := record[field].(string); ok {
			return v, true
		}
	}
	return "", false
}
