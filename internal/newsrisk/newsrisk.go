// Package newsrisk scores macro event risk from RSS headlines with a
// simple keyword tally. It is a peripheral message-context signal, not
// a trading input.
package newsrisk

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"sort"
	"strings"
	"time"

	"krx-momentum-lab/internal/stats"
	"krx-momentum-lab/internal/timeutil"
)

var negativeTerms = []string{
	"inflation", "rate hike", "hawkish", "recession", "war", "crisis",
	"downgrade", "default", "selloff", "plunge", "tariff", "sanction",
}

var positiveTerms = []string{
	"rate cut", "cooling inflation", "soft landing", "upgrade", "rally",
	"record high", "beat estimates",
}

// Tone labels.
const (
	ToneRiskOff = "event caution (risk-off)"
	ToneRiskOn  = "event friendly (risk-on)"
	ToneNeutral = "neutral/mixed"
	ToneLimited = "neutral (feed collection limited)"
)

const (
	maxFeeds        = 5
	defaultLookback = 30 * time.Hour
	feedTimeout     = 8 * time.Second
)

// Headline is one parsed RSS item.
type Headline struct {
	Title     string
	Published time.Time // zero when the feed carried no usable date
	Source    string
}

// Context is the event-risk summary attached to operator messages.
type Context struct {
	RiskScore   float64
	Tone        string
	Headlines   []string // top negative-leaning titles, at most 3
	EventsToday []string
	SampleSize  int
}

// Config selects the feeds and the high-impact calendar.
type Config struct {
	Enable bool
	// FeedURLs is a comma-separated RSS url list.
	FeedURLs string
	// HighImpactDates is "YYYY-MM-DD:label;..." pairs.
	HighImpactDates string
}

// Scorer fetches and tallies headlines.
type Scorer struct {
	cfg    Config
	client *http.Client
}

// New creates a Scorer. client nil uses a default with the feed timeout.
func New(cfg Config, client *http.Client) *Scorer {
	if client == nil {
		client = &http.Client{Timeout: feedTimeout}
	}
	return &Scorer{cfg: cfg, client: client}
}

// Build fetches the feeds and scores event risk at now. Returns nil
// when the feature is disabled or no feed is configured; individual
// feed failures are skipped.
func (s *Scorer) Build(ctx context.Context, now time.Time) *Context {
	if !s.cfg.Enable {
		return nil
	}
	urls := splitList(s.cfg.FeedURLs)
	if len(urls) == 0 {
		return nil
	}
	if len(urls) > maxFeeds {
		urls = urls[:maxFeeds]
	}

	var headlines []Headline
	for _, url := range urls {
		items, err := s.fetchFeed(ctx, url)
		if err != nil {
			continue
		}
		headlines = append(headlines, items...)
	}

	eventsToday := highImpactToday(now, s.cfg.HighImpactDates)
	if len(headlines) == 0 {
		return &Context{RiskScore: 50, Tone: ToneLimited, EventsToday: eventsToday}
	}

	cutoff := now.Add(-defaultLookback)
	var recent []Headline
	for _, h := range headlines {
		if h.Published.IsZero() || !h.Published.Before(cutoff) {
			recent = append(recent, h)
		}
	}
	if len(recent) == 0 {
		if len(headlines) > 20 {
			headlines = headlines[:20]
		}
		recent = headlines
	}

	neg, pos := 0, 0
	type scoredHeadline struct {
		netNeg int
		title  string
	}
	scored := make([]scoredHeadline, 0, len(recent))
	for _, h := range recent {
		t := strings.ToLower(h.Title)
		n, p := 0, 0
		for _, w := range negativeTerms {
			if strings.Contains(t, w) {
				n++
			}
		}
		for _, w := range positiveTerms {
			if strings.Contains(t, w) {
				p++
			}
		}
		neg += n
		pos += p
		scored = append(scored, scoredHeadline{netNeg: n - p, title: h.Title})
	}

	riskRaw := 50.0 + 35.0*float64(neg-pos)/float64(len(recent)) + 8.0*float64(len(eventsToday))
	riskScore := stats.Clamp(riskRaw, 0, 100)

	tone := ToneNeutral
	if riskScore >= 67 {
		tone = ToneRiskOff
	} else if riskScore <= 35 {
		tone = ToneRiskOn
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].netNeg > scored[j].netNeg })
	top := make([]string, 0, 3)
	for i := 0; i < len(scored) && i < 3; i++ {
		top = append(top, scored[i].title)
	}

	return &Context{
		RiskScore:   riskScore,
		Tone:        tone,
		Headlines:   top,
		EventsToday: eventsToday,
		SampleSize:  len(recent),
	}
}

type rssItem struct {
	Title   string `xml:"title"`
	PubDate string `xml:"pubDate"`
	Source  string `xml:"source"`
}

type rssDoc struct {
	Items []rssItem `xml:"channel>item"`
}

func (s *Scorer) fetchFeed(ctx context.Context, url string) ([]Headline, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return ParseRSS(body)
}

// ParseRSS extracts titled items from an RSS document.
func ParseRSS(data []byte) ([]Headline, error) {
	var doc rssDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}
	var out []Headline
	for _, item := range doc.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		source := strings.TrimSpace(item.Source)
		if source == "" {
			source = "rss"
		}
		out = append(out, Headline{
			Title:     title,
			Published: parsePubDate(item.PubDate),
			Source:    source,
		})
	}
	return out, nil
}

// parsePubDate reads an RFC1123-style RSS date in KST; unparseable
// dates are treated as unknown.
func parsePubDate(text string) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}
	dt, err := mail.ParseDate(text)
	if err != nil {
		return time.Time{}
	}
	return dt.In(timeutil.KST)
}

// highImpactToday returns the labels whose date matches today in the
// "YYYY-MM-DD:label;..." calendar spec.
func highImpactToday(now time.Time, spec string) []string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	today := timeutil.DayKey(now)
	var events []string
	for _, token := range strings.Split(spec, ";") {
		token = strings.TrimSpace(token)
		d, label, ok := strings.Cut(token, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(d) != today {
			continue
		}
		label = strings.TrimSpace(label)
		if label == "" {
			label = "high-impact event"
		}
		events = append(events, label)
	}
	return events
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
