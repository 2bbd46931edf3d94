package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// ForexFactory publishes this week's calendar as JSON, limited to roughly
// 2 requests per 5 minutes.
const forexFactoryURL = "https://nfs.faireconomy.media/ff_calendar_thisweek.json"

type ffEvent struct {
	Title   string `json:"title"`
	Country string `json:"country"`
	Date    string `json:"date"`
	Impact  string `json:"impact"`
}

// Refresher periodically pulls the ForexFactory calendar into a Calendar.
type Refresher struct {
	calendar  *Calendar
	client    *http.Client
	url       string
	interval  time.Duration
	monitored map[string]bool
}

func NewRefresher(calendar *Calendar, monitoredCurrencies []string) *Refresher {
	monitored := make(map[string]bool, len(monitoredCurrencies))
	for _, c := range monitoredCurrencies {
		monitored[strings.ToUpper(c)] = true
	}
	return &Refresher{
		calendar:  calendar,
		client:    &http.Client{Timeout: 15 * time.Second},
		url:       forexFactoryURL,
		interval:  time.Hour,
		monitored: monitored,
	}
}

// Run fetches immediately, then on every interval until the context ends.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		log.Printf("news refresh: %v", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				log.Printf("news refresh: %v", err)
			}
		}
	}
}

// Refresh pulls the current week's events and replaces the calendar contents.
func (r *Refresher) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calendar feed returned status %d", resp.StatusCode)
	}

	var raw []ffEvent
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return err
	}

	events := make([]Event, 0, len(raw))
	high := 0
	for _, e := range raw {
		country := strings.ToUpper(strings.TrimSpace(e.Country))
		if !r.monitored[country] {
			continue
		}
		// Dates arrive with a zone offset, e.g. 2026-02-04T08:15:00-05:00.
		t, err := time.Parse(time.RFC3339, e.Date)
		if err != nil {
			continue
		}
		impact := strings.TrimSpace(e.Impact)
		if impact == "High" {
			high++
		}
		events = append(events, Event{
			Time:     t.UTC(),
			Currency: country,
			Impact:   impact,
			Title:    e.Title,
		})
	}

	r.calendar.SetEvents(events)
	log.Printf("Loaded %d news events (%d high-impact) for this week", len(events), high)
	return nil
}
