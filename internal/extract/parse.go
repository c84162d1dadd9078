package extract

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
)

type listingPayload struct {
	Items []json.RawMessage `json:"items"`
}

type listingItemPayload struct {
	Title    *string `json:"title"`
	Href     *string `json:"href"`
	DateText *string `json:"date_text"`
}

func parseListing(raw json.RawMessage) ([]crawler.ListingItem, error) {
	var payload listingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode listing: %w: %w", crawler.ErrExtractionInvalid, err)
	}
	items := make([]crawler.ListingItem, 0, len(payload.Items))
	for _, rawItem := range payload.Items {
		var it listingItemPayload
		if err := json.Unmarshal(rawItem, &it); err != nil {
			continue
		}
		item := crawler.ListingItem{
			Title:    blankish(deref(it.Title)),
			Href:     blankish(deref(it.Href)),
			DateText: blankish(deref(it.DateText)),
		}
		if item.Title == "" || item.Href == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

type detailPayload struct {
	Title        *string  `json:"title"`
	MainArtist   *string  `json:"main_artist"`
	OtherArtists []string `json:"other_artists"`
	StartDate    *string  `json:"start_date"`
	EndDate      *string  `json:"end_date"`
	Details      *string  `json:"details"`
	Summary      *string  `json:"summary"`
}

// parseDetail validates a detail object. A typed decode failure falls back
// to whatever title can be recovered from the raw object.
func parseDetail(raw json.RawMessage, url string) (crawler.DetailRecord, error) {
	var payload detailPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fallbackDetail(raw, url, err)
	}
	rec := crawler.DetailRecord{
		Title:      blankish(deref(payload.Title)),
		MainArtist: blankish(deref(payload.MainArtist)),
		StartDate:  blankish(deref(payload.StartDate)),
		EndDate:    blankish(deref(payload.EndDate)),
		Summary:    blankish(deref(payload.Details)),
		URL:        url,
	}
	if rec.Summary == "" {
		rec.Summary = blankish(deref(payload.Summary))
	}
	for _, name := range payload.OtherArtists {
		if name = blankish(name); name != "" {
			rec.OtherArtists = append(rec.OtherArtists, name)
		}
	}
	if rec.Title == "" {
		return crawler.DetailRecord{}, fmt.Errorf("detail has no title: %w", crawler.ErrExtractionInvalid)
	}
	return rec, nil
}

func fallbackDetail(raw json.RawMessage, url string, cause error) (crawler.DetailRecord, error) {
	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return crawler.DetailRecord{}, fmt.Errorf("decode detail: %w: %w", crawler.ErrExtractionInvalid, err)
	}
	title, _ := loose["title"].(string)
	title = blankish(title)
	if title == "" {
		return crawler.DetailRecord{}, fmt.Errorf("decode detail: %w: %w", crawler.ErrExtractionInvalid, cause)
	}
	return crawler.DetailRecord{Title: title, URL: url}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
