package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/marvel-client/pkg/marvel"
)

// CharactersEndpoint is the character list endpoint.
const CharactersEndpoint = "/v1/public/characters"

// CharacterQuery selects a page of the character list.
type CharacterQuery struct {
	Offset int
	Limit  int

	// NameStartsWith filters characters by name prefix (optional)
	NameStartsWith string

	// OrderBy is "name", "modified", "-name" or "-modified" (optional)
	OrderBy string
}

// Values encodes the query parameters.
func (q CharacterQuery) Values() (url.Values, error) {
	if q.Offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0 (got %d)", q.Offset)
	}
	if q.Limit < 1 || q.Limit > marvel.MaxPageLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d (got %d)", marvel.MaxPageLimit, q.Limit)
	}

	v := url.Values{}
	v.Set("offset", strconv.Itoa(q.Offset))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.NameStartsWith != "" {
		v.Set("nameStartsWith", q.NameStartsWith)
	}
	if q.OrderBy != "" {
		v.Set("orderBy", q.OrderBy)
	}
	return v, nil
}

// FetchCharacters requests one page of characters and returns the decoded envelope.
func (c *Client) FetchCharacters(ctx context.Context, q CharacterQuery) (*marvel.DataWrapper, error) {
	values, err := q.Values()
	if err != nil {
		return nil, err
	}
	return c.fetchWrapper(ctx, CharactersEndpoint, values)
}

// FetchPage implements pagination.PageFetcher over the unfiltered character list.
func (c *Client) FetchPage(ctx context.Context, offset, limit int) (*marvel.Page, error) {
	w, err := c.FetchCharacters(ctx, CharacterQuery{Offset: offset, Limit: limit})
	if err != nil {
		return nil, err
	}
	return &w.Data, nil
}

// FetchCharacter requests a single character by ID.
func (c *Client) FetchCharacter(ctx context.Context, id int) (*marvel.Character, error) {
	w, err := c.fetchWrapper(ctx, CharactersEndpoint+"/"+strconv.Itoa(id), nil)
	if err != nil {
		return nil, err
	}
	if len(w.Data.Results) == 0 {
		return nil, &MarvelError{
			StatusCode: http.StatusNotFound,
			ErrorClass: ErrorClassClient,
			Message:    fmt.Sprintf("character %d not found", id),
		}
	}
	return &w.Data.Results[0], nil
}

func (c *Client) fetchWrapper(ctx context.Context, endpoint string, query url.Values) (*marvel.DataWrapper, error) {
	resp, err := c.Get(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}
	defer resp.Body.Close()

	w, err := marvel.DecodeWrapper(resp.Body)
	if err != nil {
		marvelErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &MarvelError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "invalid character data",
			Err:        err,
		}
	}
	if w.AttributionText != "" {
		c.attribution.Store(w.AttributionText)
	}
	return w, nil
}

// FilteredFetcher is a pagination.PageFetcher over a filtered character list.
type FilteredFetcher struct {
	client         *Client
	nameStartsWith string
	orderBy        string
}

// Filtered returns a page fetcher restricted to names starting with prefix.
func (c *Client) Filtered(nameStartsWith, orderBy string) *FilteredFetcher {
	return &FilteredFetcher{
		client:         c,
		nameStartsWith: nameStartsWith,
		orderBy:        orderBy,
	}
}

// FetchPage implements pagination.PageFetcher.
func (f *FilteredFetcher) FetchPage(ctx context.Context, offset, limit int) (*marvel.Page, error) {
	w, err := f.client.FetchCharacters(ctx, CharacterQuery{
		Offset:         offset,
		Limit:          limit,
		NameStartsWith: f.nameStartsWith,
		OrderBy:        f.orderBy,
	})
	if err != nil {
		return nil, err
	}
	return &w.Data, nil
}
