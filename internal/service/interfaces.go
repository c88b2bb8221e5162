package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"cafe_notifier/internal/domain"
)

type StateStore interface {
	Load(ctx context.Context) (domain.SeenState, error)
	Save(ctx context.Context, state domain.SeenState) error
}

// Fetcher returns nil when the latest post could not be determined.
type Fetcher interface {
	Fetch(ctx context.Context, board domain.BoardConfig) *domain.LatestPost
}

type Announcer interface {
	Announce(ctx context.Context, announcement domain.Announcement) error
}

type Publisher interface {
	Publish(ctx context.Context, announcement domain.Announcement) error
	Close() error
}
