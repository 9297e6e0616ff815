package marvel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxPageLimit is the largest limit the characters endpoint accepts.
const MaxPageLimit = 100

// ErrInvalidPage is returned when page metadata is inconsistent.
var ErrInvalidPage = errors.New("invalid page")

// Page is one server-returned batch of characters.
type Page struct {
	Offset  int         `json:"offset"`
	Limit   int         `json:"limit"`
	Total   int         `json:"total"`
	Count   int         `json:"count"`
	Results []Character `json:"results"`
}

// Validate checks the page metadata invariants.
func (p *Page) Validate() error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: nil page", ErrInvalidPage)
	case p.Offset < 0:
		return fmt.Errorf("%w: negative offset %d", ErrInvalidPage, p.Offset)
	case p.Limit <= 0:
		return fmt.Errorf("%w: limit must be positive (got %d)", ErrInvalidPage, p.Limit)
	case p.Total < 0:
		return fmt.Errorf("%w: negative total %d", ErrInvalidPage, p.Total)
	case p.Count != len(p.Results):
		return fmt.Errorf("%w: count %d does not match %d results", ErrInvalidPage, p.Count, len(p.Results))
	}
	return nil
}

// DataWrapper is the envelope around every Marvel API response.
type DataWrapper struct {
	Code            int    `json:"code"`
	Status          string `json:"status"`
	ETag            string `json:"etag"`
	Copyright       string `json:"copyright,omitempty"`
	AttributionText string `json:"attributionText,omitempty"`
	Data            Page   `json:"data"`
}

// DecodeWrapper decodes a full response envelope.
func DecodeWrapper(r io.Reader) (*DataWrapper, error) {
	var w DataWrapper
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode character data wrapper: %w", err)
	}
	if err := w.Data.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// DecodePage decodes a response envelope and returns its page.
func DecodePage(r io.Reader) (*Page, error) {
	w, err := DecodeWrapper(r)
	if err != nil {
		return nil, err
	}
	return &w.Data, nil
}
