package nextbus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/livemap/pkg/ctdf"
	"github.com/travigo/livemap/pkg/util"
)

const (
	DataSource     = "nextbus"
	DefaultBaseURL = "https://retro.umoiq.com/service/publicXMLFeed"
	DefaultAgency  = "ttc"
)

type Config struct {
	BaseURL string `yaml:"baseURL" validate:"required,url"`
	Agency  string `yaml:"agency" validate:"required"`

	// Simultaneous per-route or per-vehicle requests
	Concurrency int `yaml:"concurrency" validate:"gte=1"`

	// Zero leaves requests bounded only by the caller's context
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Agency:      DefaultAgency,
		Concurrency: 8,
	}
}

// Client talks to the NextBus public XML feed
type Client struct {
	config     Config
	httpClient *http.Client
	routeCache *cache.Cache[string]

	now func() time.Time
}

func NewClient(config Config) *Client {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		now:        time.Now,
	}
}

// SetRouteCache stores route lists between calls to Routes
func (c *Client) SetRouteCache(routeCache *cache.Cache[string]) {
	c.routeCache = routeCache
}

func (c *Client) Agency() string {
	return c.config.Agency
}

// FetchByIDs looks up each vehicle individually
func (c *Client) FetchByIDs(ctx context.Context, ids []string) (*ctdf.VehicleBatch, error) {
	return c.fetchKeys(ctx, ids, func(id string) url.Values {
		return url.Values{
			"command": {"vehicleLocation"},
			"v":       {id},
		}
	})
}

// FetchByRoutes requests the full vehicle list of each route
func (c *Client) FetchByRoutes(ctx context.Context, routes []string) (*ctdf.VehicleBatch, error) {
	return c.fetchKeys(ctx, routes, func(route string) url.Values {
		return url.Values{
			"command": {"vehicleLocations"},
			"r":       {route},
			"t":       {"0"},
		}
	})
}

// FetchIncremental requests every vehicle of the agency that reported since token
func (c *Client) FetchIncremental(ctx context.Context, token string) (*ctdf.VehicleBatch, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	if token == "" {
		token = "0"
	}

	fetchedAt := c.now()
	body, err := c.request(ctx, url.Values{
		"command": {"vehicleLocations"},
		"t":       {token},
	})
	if err != nil {
		return nil, &FetchError{Err: err}
	}

	if len(body.Errors) > 0 {
		return nil, &FetchError{Err: body.Errors[0].toError()}
	}

	batch := &ctdf.VehicleBatch{
		Vehicles:          c.convertVehicles(body.Vehicles, fetchedAt),
		ContinuationToken: token,
	}
	if body.LastTime != nil && body.LastTime.Time != "" {
		batch.ContinuationToken = body.LastTime.Time
	}

	return batch, nil
}

type keyResult struct {
	index     int
	key       string
	body      *feedBody
	fetchedAt time.Time
	err       error
}

func (c *Client) fetchKeys(ctx context.Context, keys []string, query func(key string) url.Values) (*ctdf.VehicleBatch, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	keys = util.RemoveDuplicateStrings(keys, nil)
	batch := &ctdf.VehicleBatch{}
	if len(keys) == 0 {
		return batch, nil
	}

	p := pool.NewWithResults[keyResult]().WithMaxGoroutines(c.config.Concurrency)
	for index, key := range keys {
		p.Go(func() keyResult {
			fetchedAt := c.now()
			body, err := c.request(ctx, query(key))

			return keyResult{index: index, key: key, body: body, fetchedAt: fetchedAt, err: err}
		})
	}

	results := make([]keyResult, len(keys))
	for _, result := range p.Wait() {
		results[result.index] = result
	}

	var errs []error
	for _, result := range results {
		if err := c.keyError(result); err != nil {
			log.Warn().Err(err).Str("key", result.key).Msg("NextBus request failed")

			batch.FailedKeys = append(batch.FailedKeys, result.key)
			errs = append(errs, err)
			continue
		}

		batch.Vehicles = append(batch.Vehicles, c.convertVehicles(result.body.Vehicles, result.fetchedAt)...)
	}

	if len(errs) == len(keys) {
		return batch, errors.Join(errs...)
	}

	return batch, nil
}

// keyError decides whether a response counts as a failure. Errors the feed marks as not worth
// retrying mean there is simply no data for that key.
func (c *Client) keyError(result keyResult) error {
	if result.err != nil {
		return &FetchError{Key: result.key, Err: result.err}
	}

	for _, element := range result.body.Errors {
		feedErr := element.toError()
		if feedErr.ShouldRetry {
			return &FetchError{Key: result.key, Err: feedErr}
		}

		log.Debug().Str("key", result.key).Str("message", feedErr.Message).Msg("NextBus has no data")
	}

	return nil
}

func (c *Client) convertVehicles(feedVehicles []feedVehicle, fetchedAt time.Time) []*ctdf.VehicleState {
	var vehicles []*ctdf.VehicleState

	for _, feedVehicle := range feedVehicles {
		vehicle, err := feedVehicle.toVehicleState(fetchedAt)
		if err != nil {
			log.Debug().Err(err).Str("vehicle", feedVehicle.ID).Msg("Discarding vehicle record")
			continue
		}

		vehicles = append(vehicles, vehicle)
	}

	return vehicles
}

func (c *Client) validate() error {
	if c.config.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.config.Agency == "" {
		return ErrMissingAgency
	}

	return nil
}

func (c *Client) request(ctx context.Context, params url.Values) (*feedBody, error) {
	params.Set("a", c.config.Agency)
	requestURL := fmt.Sprintf("%s?%s", c.config.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "travigo-livemap")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return parseBody(resp.Body)
}
