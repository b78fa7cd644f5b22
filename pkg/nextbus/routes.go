package nextbus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/util"
)

type Route struct {
	Tag   string `json:"tag" groups:"basic" csv:"tag"`
	Title string `json:"title" groups:"basic" csv:"title"`
}

// NewRouteCache builds a Redis backed cache for route lists
func NewRouteCache(client *redis.Client, expiration time.Duration) *cache.Cache[string] {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(expiration))

	return cache.New[string](redisStore)
}

// Routes lists every route of the agency ordered by title, numbers compared numerically
func (c *Client) Routes(ctx context.Context) ([]Route, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("livemap:routes:%s", c.config.Agency)
	if routes := c.cachedRoutes(ctx, cacheKey); routes != nil {
		return routes, nil
	}

	body, err := c.request(ctx, url.Values{"command": {"routeList"}})
	if err != nil {
		return nil, &FetchError{Key: "routeList", Err: err}
	}
	if len(body.Errors) > 0 {
		return nil, &FetchError{Key: "routeList", Err: body.Errors[0].toError()}
	}

	routes := make([]Route, 0, len(body.Routes))
	for _, feedRoute := range body.Routes {
		if feedRoute.Tag == "" {
			continue
		}

		title := feedRoute.Title
		if title == "" {
			title = feedRoute.Tag
		}
		routes = append(routes, Route{Tag: feedRoute.Tag, Title: title})
	}

	sort.SliceStable(routes, func(a, b int) bool {
		return util.NaturalLess(routes[a].Title, routes[b].Title)
	})

	if c.routeCache != nil {
		if encoded, err := json.Marshal(routes); err == nil {
			if err := c.routeCache.Set(ctx, cacheKey, string(encoded)); err != nil {
				log.Warn().Err(err).Msg("Failed to cache route list")
			}
		}
	}

	return routes, nil
}

func (c *Client) cachedRoutes(ctx context.Context, cacheKey string) []Route {
	if c.routeCache == nil {
		return nil
	}

	cached, err := c.routeCache.Get(ctx, cacheKey)
	if err != nil {
		return nil
	}

	var routes []Route
	if err := json.Unmarshal([]byte(cached), &routes); err != nil {
		return nil
	}

	return routes
}
