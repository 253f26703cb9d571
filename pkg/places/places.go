// Package places resolves service queries to callable businesses via the
// Google Places API, with a built-in fallback catalog when the API is
// unconfigured, errors, or returns nothing.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/friendlyhq/friendly/pkg/models"
)

const apiBaseURL = "https://maps.googleapis.com/maps/api/place"

// LatLng biases the text search around a point (10km radius).
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Searcher is the consumer-side lookup interface.
type Searcher interface {
	Search(ctx context.Context, query, location string, latLng *LatLng, maxResults int) []models.Business
}

// Client queries the Places API. An empty API key means every search serves
// the fallback catalog.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func New(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: apiBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Search finds up to maxResults businesses with phone numbers. It never
// fails: API errors and empty result sets degrade to the fallback catalog.
func (c *Client) Search(ctx context.Context, query, location string, latLng *LatLng, maxResults int) []models.Business {
	if maxResults <= 0 {
		maxResults = 3
	}

	if c.apiKey == "" {
		slog.Info("places: API key not set, using fallback catalog", "query", query)
		return fallbackBusinesses(query, maxResults)
	}

	businesses, err := c.searchAPI(ctx, query, location, latLng, maxResults)
	if err != nil {
		slog.Error("places: search failed, using fallback catalog", "query", query, "error", err)
		return fallbackBusinesses(query, maxResults)
	}
	if len(businesses) == 0 {
		slog.Info("places: no results, using fallback catalog", "query", query)
		return fallbackBusinesses(query, maxResults)
	}
	return businesses
}

func (c *Client) searchAPI(ctx context.Context, query, location string, latLng *LatLng, maxResults int) ([]models.Business, error) {
	searchQuery := query
	if location != "" {
		searchQuery = fmt.Sprintf("%s in %s", query, location)
	}

	params := url.Values{}
	params.Set("query", searchQuery)
	params.Set("key", c.apiKey)
	if latLng != nil {
		params.Set("location", fmt.Sprintf("%f,%f", latLng.Lat, latLng.Lng))
		params.Set("radius", "10000")
	}

	var search struct {
		Results []struct {
			PlaceID string `json:"place_id"`
		} `json:"results"`
	}
	if err := c.getJSON(ctx, "/textsearch/json", params, &search); err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	places := search.Results
	if len(places) == 0 {
		return nil, nil
	}
	// Overfetch: some places have no phone number and get filtered out.
	if len(places) > maxResults*2 {
		places = places[:maxResults*2]
	}

	details := make([]*models.Business, len(places))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range places {
		if p.PlaceID == "" {
			continue
		}
		g.Go(func() error {
			b, err := c.fetchDetails(gctx, p.PlaceID)
			if err != nil {
				slog.Warn("places: details fetch failed", "place_id", p.PlaceID, "error", err)
				return nil
			}
			details[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var businesses []models.Business
	for _, b := range details {
		if b == nil || b.Phone == "" {
			continue
		}
		businesses = append(businesses, *b)
		if len(businesses) >= maxResults {
			break
		}
	}
	return businesses, nil
}

// fetchDetails returns nil (not an error) when the place has no phone number.
func (c *Client) fetchDetails(ctx context.Context, placeID string) (*models.Business, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "name,formatted_phone_number,international_phone_number,formatted_address,rating,website,geometry")
	params.Set("key", c.apiKey)

	var detail struct {
		Result struct {
			Name                     string  `json:"name"`
			FormattedPhoneNumber     string  `json:"formatted_phone_number"`
			InternationalPhoneNumber string  `json:"international_phone_number"`
			FormattedAddress         string  `json:"formatted_address"`
			Rating                   float64 `json:"rating"`
			Website                  string  `json:"website"`
			Geometry                 struct {
				Location struct {
					Lat *float64 `json:"lat"`
					Lng *float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"result"`
	}
	if err := c.getJSON(ctx, "/details/json", params, &detail); err != nil {
		return nil, err
	}

	result := detail.Result
	phone := result.InternationalPhoneNumber
	if phone == "" {
		phone = result.FormattedPhoneNumber
	}
	if phone == "" {
		return nil, nil
	}

	name := result.Name
	if name == "" {
		name = "Unknown"
	}

	return &models.Business{
		ID:        placeID,
		Name:      name,
		Phone:     strings.ReplaceAll(phone, " ", ""),
		Address:   result.FormattedAddress,
		Rating:    result.Rating,
		PlaceID:   placeID,
		Website:   result.Website,
		Latitude:  result.Geometry.Location.Lat,
		Longitude: result.Geometry.Location.Lng,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func ptr(f float64) *float64 { return &f }

var fallbackOnce sync.Once
var fallbackCatalog map[string][]models.Business

// fallbackBusinesses serves the demo catalog: exact key match first, then
// substring match either direction, then the default entries.
func fallbackBusinesses(query string, maxResults int) []models.Business {
	fallbackOnce.Do(initFallbackCatalog)

	q := strings.ToLower(query)
	if list, ok := fallbackCatalog[q]; ok {
		return capList(list, maxResults)
	}
	for key, list := range fallbackCatalog {
		if key == "default" {
			continue
		}
		if strings.Contains(q, key) || strings.Contains(key, q) {
			return capList(list, maxResults)
		}
	}
	return capList(fallbackCatalog["default"], maxResults)
}

func capList(list []models.Business, n int) []models.Business {
	if len(list) > n {
		list = list[:n]
	}
	out := make([]models.Business, len(list))
	copy(out, list)
	return out
}

func initFallbackCatalog() {
	fallbackCatalog = map[string][]models.Business{
		"plumber": {
			{
				ID: "fallback_plumber_1", Name: "Pimlico Plumbers", Phone: "+442078331111",
				Address: "1 Sail Street, London SE11 6NQ", Rating: 4.5,
				Latitude: ptr(51.4875), Longitude: ptr(-0.1087),
			},
			{
				ID: "fallback_plumber_2", Name: "Mr. Plumber London", Phone: "+442072230987",
				Address: "15 High Street, London EC1V 9JX", Rating: 4.3,
				Latitude: ptr(51.5246), Longitude: ptr(-0.0952),
			},
			{
				ID: "fallback_plumber_3", Name: "HomeServe UK", Phone: "+443301238888",
				Address: "Cable Drive, Walsall WS2 7BN", Rating: 4.1,
				Latitude: ptr(52.5860), Longitude: ptr(-1.9826),
			},
		},
		"electrician": {
			{
				ID: "fallback_electrician_1", Name: "London Electrical Services", Phone: "+442071234567",
				Address: "10 Electric Avenue, London SW9 8LA", Rating: 4.6,
				Latitude: ptr(51.4613), Longitude: ptr(-0.1156),
			},
			{
				ID: "fallback_electrician_2", Name: "Spark Electrical", Phone: "+442089876543",
				Address: "25 Power Street, London NW1 8XY", Rating: 4.4,
				Latitude: ptr(51.5362), Longitude: ptr(-0.1426),
			},
		},
		"locksmith": {
			{
				ID: "fallback_locksmith_1", Name: "London Locksmiths 24/7", Phone: "+442074561234",
				Address: "Lock Lane, London W1 2AB", Rating: 4.7,
				Latitude: ptr(51.5155), Longitude: ptr(-0.1419),
			},
		},
		"default": {
			{
				// Twilio test number, always answers.
				ID: "fallback_default_1", Name: "Friendly Demo Business 1", Phone: "+15005550006",
				Address: "123 Demo Street, London", Rating: 4.5,
				Latitude: ptr(51.5074), Longitude: ptr(-0.1278),
			},
			{
				ID: "fallback_default_2", Name: "Friendly Demo Business 2", Phone: "+15005550006",
				Address: "456 Test Road, London", Rating: 4.3,
				Latitude: ptr(51.5124), Longitude: ptr(-0.1231),
			},
		},
	}
}
