package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/louisbranch/dummyrange/internal/platform/errors"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/upstream"
)

// Default upstream endpoints.
const (
	DefaultUsersBaseURL      = "https://users.roblox.com"
	DefaultThumbnailsBaseURL = "https://thumbnails.roblox.com"
	DefaultAvatarSize        = "420x420"
)

// Fetcher performs one upstream request, retries included.
type Fetcher interface {
	Do(ctx context.Context, req upstream.Request) (upstream.Response, error)
}

// Config configures a Client.
type Config struct {
	UsersBaseURL      string
	ThumbnailsBaseURL string
	AvatarSize        string
	// DemoFallback returns a demo profile instead of a rate-limit error.
	DemoFallback bool
}

// Client resolves usernames into profiles. Every upstream call goes through
// the shared queue; every step is cached before the queue is touched.
type Client struct {
	cfg     Config
	fetcher Fetcher
	queue   *upstream.Queue
	cache   *Cache
	flights singleflight.Group
}

// NewClient builds a profile client.
func NewClient(cfg Config, fetcher Fetcher, queue *upstream.Queue, cache *Cache) *Client {
	if cfg.UsersBaseURL == "" {
		cfg.UsersBaseURL = DefaultUsersBaseURL
	}
	if cfg.ThumbnailsBaseURL == "" {
		cfg.ThumbnailsBaseURL = DefaultThumbnailsBaseURL
	}
	if cfg.AvatarSize == "" {
		cfg.AvatarSize = DefaultAvatarSize
	}
	cfg.UsersBaseURL = strings.TrimRight(cfg.UsersBaseURL, "/")
	cfg.ThumbnailsBaseURL = strings.TrimRight(cfg.ThumbnailsBaseURL, "/")
	if queue == nil {
		queue = upstream.NewQueue(0)
	}
	if cache == nil {
		cache = NewCache(nil)
	}
	return &Client{cfg: cfg, fetcher: fetcher, queue: queue, cache: cache}
}

// FetchProfile resolves username. Lookups are case-insensitive, and
// concurrent calls for the same name share one lookup sequence.
func (c *Client) FetchProfile(ctx context.Context, username string) (Profile, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return Profile{}, apperrors.New(apperrors.CodeInvalidArgument, "username is required")
	}
	folded := FoldUsername(name)

	if p, ok := c.cachedProfile(folded); ok {
		return p, nil
	}

	// The shared lookup outlives any one caller; each caller stops waiting
	// when its own context ends.
	flight := c.flights.DoChan(folded, func() (any, error) {
		return c.lookup(context.WithoutCancel(ctx), folded)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	case res = <-flight:
	}
	result, err := res.Val, res.Err
	if err != nil {
		if c.cfg.DemoFallback && errors.Is(err, upstream.ErrRateLimited) {
			return Demo(name), nil
		}
		return Profile{}, err
	}
	return result.(Profile), nil
}

// ClearCache drops every cached lookup.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// CacheLen reports the number of cached lookup results.
func (c *Client) CacheLen() int {
	return c.cache.Len()
}

func (c *Client) lookup(ctx context.Context, folded string) (Profile, error) {
	if p, ok := c.cachedProfile(folded); ok {
		return p, nil
	}

	id, err := c.resolveUserID(ctx, folded)
	if err != nil {
		return Profile{}, err
	}

	var (
		info   userInfo
		avatar *string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = c.userInfo(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		avatar, err = c.avatarURL(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return Profile{}, err
	}

	p := Profile{
		ID:          id,
		Username:    info.Name,
		DisplayName: info.DisplayName,
		AvatarURL:   avatar,
	}
	if encoded, err := json.Marshal(p); err == nil {
		c.cache.Put(ctx, Key{Kind: KindProfile, Arg: folded}, encoded)
	}
	return p, nil
}

func (c *Client) cachedProfile(folded string) (Profile, bool) {
	raw, ok := c.cache.Get(Key{Kind: KindProfile, Arg: folded})
	if !ok {
		return Profile{}, false
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, false
	}
	return p, true
}

type usernamesRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type usernamesResponse struct {
	Data []struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

func (c *Client) resolveUserID(ctx context.Context, folded string) (int64, error) {
	key := Key{Kind: KindUserID, Arg: folded}
	if raw, ok := c.cache.Get(key); ok {
		if id, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			return id, nil
		}
	}

	body, err := json.Marshal(usernamesRequest{Usernames: []string{folded}})
	if err != nil {
		return 0, fmt.Errorf("encode username lookup: %w", err)
	}
	var decoded usernamesResponse
	if err := c.fetchJSON(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    c.cfg.UsersBaseURL + "/v1/usernames/users",
		Body:   body,
	}, &decoded); err != nil {
		return 0, err
	}
	if len(decoded.Data) == 0 {
		return 0, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("user %q not found", folded),
			map[string]string{"username": folded})
	}
	id := decoded.Data[0].ID
	c.cache.Put(ctx, key, []byte(strconv.FormatInt(id, 10)))
	return id, nil
}

type userInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

func (c *Client) userInfo(ctx context.Context, id int64) (userInfo, error) {
	key := Key{Kind: KindUserInfo, Arg: strconv.FormatInt(id, 10)}
	if raw, ok := c.cache.Get(key); ok {
		var info userInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			return info, nil
		}
	}

	var info userInfo
	if err := c.fetchJSON(ctx, upstream.Request{
		Method: http.MethodGet,
		URL:    c.cfg.UsersBaseURL + "/v1/users/" + strconv.FormatInt(id, 10),
	}, &info); err != nil {
		return userInfo{}, err
	}
	if encoded, err := json.Marshal(info); err == nil {
		c.cache.Put(ctx, key, encoded)
	}
	return info, nil
}

type avatarResponse struct {
	Data []struct {
		TargetID int64  `json:"targetId"`
		State    string `json:"state"`
		ImageURL string `json:"imageUrl"`
	} `json:"data"`
}

// avatarURL returns nil when the user has no avatar or the thumbnail service
// answers with a non-retryable status.
func (c *Client) avatarURL(ctx context.Context, id int64) (*string, error) {
	key := Key{Kind: KindAvatar, Arg: strconv.FormatInt(id, 10)}
	if raw, ok := c.cache.Get(key); ok {
		var cached *string
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	query := url.Values{}
	query.Set("userIds", strconv.FormatInt(id, 10))
	query.Set("size", c.cfg.AvatarSize)
	query.Set("format", "Png")
	var decoded avatarResponse
	err := c.fetchJSON(ctx, upstream.Request{
		Method: http.MethodGet,
		URL:    c.cfg.ThumbnailsBaseURL + "/v1/users/avatar?" + query.Encode(),
	}, &decoded)
	if errors.Is(err, upstream.ErrHTTPStatus) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var avatar *string
	if len(decoded.Data) > 0 && decoded.Data[0].ImageURL != "" {
		imageURL := decoded.Data[0].ImageURL
		avatar = &imageURL
	}
	if encoded, err := json.Marshal(avatar); err == nil {
		c.cache.Put(ctx, key, encoded)
	}
	return avatar, nil
}

func (c *Client) fetchJSON(ctx context.Context, req upstream.Request, target any) error {
	if c.fetcher == nil {
		return fmt.Errorf("profile fetcher is not configured")
	}
	return c.queue.Do(ctx, func(ctx context.Context) error {
		resp, err := c.fetcher.Do(ctx, req)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body, target); err != nil {
			return apperrors.Wrap(apperrors.CodeUnknown, "decode upstream response", err)
		}
		return nil
	})
}
