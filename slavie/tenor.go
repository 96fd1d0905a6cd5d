package slavie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
)

var errTenorNoResults = errors.New("no results")

// Tenor looks up GIFs for interaction embeds with the Tenor search API.
// See: https://developers.google.com/tenor/guides/endpoints#search
type Tenor struct {
	config         *TenorConfig
	client         *http.Client
	logger         *slog.Logger
	requestLimiter *rate.Limiter
}

func newTenor(config *TenorConfig, httpClient *http.Client) *Tenor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &Tenor{
		config: config,
		client: httpClient,
		logger: newComponentLogger(logComponentTenor, config.LogLevel),
		requestLimiter: rate.NewLimiter(
			rate.Limit(config.RequestsPerSecond),
			max(1, int(config.RequestsPerSecond)),
		),
	}
}

type tenorSearchResponse struct {
	Results []tenorResult `json:"results"`
}

type tenorResult struct {
	ID           string                     `json:"id"`
	MediaFormats map[string]tenorMediaFormat `json:"media_formats"`
}

type tenorMediaFormat struct {
	URL string `json:"url"`
}

// Search returns the GIF URLs for a search query
func (t *Tenor) Search(ctx context.Context, query string) ([]string, error) {
	if err := t.requestLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limited: %w", err)
	}

	u, err := url.Parse(t.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tenor URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("key", t.config.APIKey)
	q.Set("client_key", t.config.ClientKey)
	q.Set("limit", strconv.Itoa(t.config.Limit))
	q.Set("media_filter", "gif")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error searching tenor: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected tenor status: %s", resp.Status)
	}

	var body tenorSearchResponse
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("error decoding tenor response: %w", err)
	}
	urls := make([]string, 0, len(body.Results))
	for _, r := range body.Results {
		if gif, ok := r.MediaFormats["gif"]; ok && gif.URL != "" {
			urls = append(urls, gif.URL)
		}
	}
	return urls, nil
}

// RandomGIF returns a random GIF URL for the query
func (t *Tenor) RandomGIF(ctx context.Context, query string) (string, error) {
	urls, err := t.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(urls) == 0 {
		return "", errTenorNoResults
	}
	return urls[rand.Intn(len(urls))], nil
}

// gifURL returns a GIF for the query, or an empty string if GIFs are
// disabled or the lookup fails. Lookups are bounded by the Tenor
// timeout so they can't hold up an interaction response.
func (s *Slavie) gifURL(ctx context.Context, config RuntimeConfig, query string) string {
	if s.tenor == nil || !config.TenorEnabled || s.tenor.config.APIKey == "" {
		return ""
	}
	if s.tenor.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.tenor.config.Timeout)
		defer cancel()
	}

	gif, err := s.tenor.RandomGIF(ctx, query)
	if err != nil {
		s.tenor.logger.WarnContext(ctx, "error getting GIF", "query", query, tint.Err(err))
		return ""
	}
	return gif
}
