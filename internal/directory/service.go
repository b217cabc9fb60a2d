package directory

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agencyhub/portal/internal/platform/cache"
)

const loadTimeout = 5 * time.Second

// Service serves cached, deduplicated directory lookups.
type Service struct {
	repo  RepositoryPort
	cache *cache.JSON
	group singleflight.Group
}

// NewService constructs a Service. A nil cache loads straight from the repository.
func NewService(repo RepositoryPort, c *cache.JSON) *Service {
	if c == nil {
		c = cache.NewJSON(nil, "directory", 0)
	}
	return &Service{repo: repo, cache: c}
}

// Client returns the client with id.
func (s *Service) Client(ctx context.Context, id int64) (Client, error) {
	var out Client
	err := s.lookup(ctx, "client", id, &out, func(ctx context.Context) (any, error) {
		return s.repo.Client(ctx, id)
	})
	return out, err
}

// ClientName returns just the display name of a client.
func (s *Service) ClientName(ctx context.Context, id int64) (string, error) {
	c, err := s.Client(ctx, id)
	if err != nil {
		return "", err
	}
	return c.Name, nil
}

// Contact returns the contact with id.
func (s *Service) Contact(ctx context.Context, id int64) (Contact, error) {
	var out Contact
	err := s.lookup(ctx, "contact", id, &out, func(ctx context.Context) (any, error) {
		return s.repo.Contact(ctx, id)
	})
	return out, err
}

// Member returns the user with id and their client.
func (s *Service) Member(ctx context.Context, id int64) (Member, error) {
	var out Member
	err := s.lookup(ctx, "member", id, &out, func(ctx context.Context) (any, error) {
		return s.repo.Member(ctx, id)
	})
	return out, err
}

// lookup shares one in-flight load per key between concurrent callers and stops
// waiting when ctx ends.
func (s *Service) lookup(ctx context.Context, kind string, id int64, dest any, load func(context.Context) (any, error)) error {
	key, err := s.cache.Key(ctx, kind, strconv.FormatInt(id, 10))
	if err != nil {
		return err
	}
	ch := s.group.DoChan(key, func() (any, error) {
		// The shared load outlives any single caller's cancellation.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		var raw json.RawMessage
		if err := s.cache.Fetch(loadCtx, key, &raw, load); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}
