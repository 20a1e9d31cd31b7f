package newsrisk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"krx-momentum-lab/internal/timeutil"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>wires</title>
<item><title>Inflation surges as rate hike looms</title><pubDate>Tue, 03 Jun 2025 08:00:00 +0900</pubDate></item>
<item><title>Markets plunge on tariff fears</title><pubDate>Tue, 03 Jun 2025 09:00:00 +0900</pubDate><source>wire-a</source></item>
<item><title>Stocks rally to record high</title><pubDate>Tue, 03 Jun 2025 10:00:00 +0900</pubDate></item>
<item><title>Quiet session ahead</title><pubDate>Tue, 03 Jun 2025 11:00:00 +0900</pubDate></item>
<item><title>  </title></item>
</channel>
</rss>`

func testNow() time.Time {
	return time.Date(2025, 6, 3, 12, 0, 0, 0, timeutil.KST)
}

func TestParseRSS(t *testing.T) {
	items, err := ParseRSS([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("ParseRSS: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("items = %d, want 4 (blank title dropped)", len(items))
	}
	if items[0].Title != "Inflation surges as rate hike looms" {
		t.Errorf("title = %q", items[0].Title)
	}
	if items[0].Source != "rss" || items[1].Source != "wire-a" {
		t.Errorf("sources = %q, %q", items[0].Source, items[1].Source)
	}
	want := time.Date(2025, 6, 3, 8, 0, 0, 0, timeutil.KST)
	if !items[0].Published.Equal(want) {
		t.Errorf("published = %v, want %v", items[0].Published, want)
	}
}

func TestParseRSS_BadDateIsUnknown(t *testing.T) {
	doc := `<rss><channel><item><title>x</title><pubDate>not a date</pubDate></item></channel></rss>`
	items, err := ParseRSS([]byte(doc))
	if err != nil {
		t.Fatalf("ParseRSS: %v", err)
	}
	if len(items) != 1 || !items[0].Published.IsZero() {
		t.Errorf("items = %+v, want one with zero date", items)
	}
}

func TestBuild_Disabled(t *testing.T) {
	s := New(Config{Enable: false, FeedURLs: "http://localhost/feed"}, nil)
	if got := s.Build(context.Background(), testNow()); got != nil {
		t.Errorf("disabled scorer returned %+v", got)
	}
	s = New(Config{Enable: true}, nil)
	if got := s.Build(context.Background(), testNow()); got != nil {
		t.Errorf("scorer without feeds returned %+v", got)
	}
}

func TestBuild_RiskOffTally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	cfg := Config{
		Enable:          true,
		FeedURLs:        srv.URL,
		HighImpactDates: "2025-06-03:FOMC decision;2025-06-10:CPI print",
	}
	got := New(cfg, srv.Client()).Build(context.Background(), testNow())
	if got == nil {
		t.Fatal("nil context")
	}
	if got.SampleSize != 4 {
		t.Errorf("sample = %d, want 4", got.SampleSize)
	}
	// 4 negative vs 2 positive hits over 4 headlines plus one calendar
	// event: 50 + 35*2/4 + 8 = 75.5.
	if got.RiskScore != 75.5 {
		t.Errorf("risk score = %v, want 75.5", got.RiskScore)
	}
	if got.Tone != ToneRiskOff {
		t.Errorf("tone = %q, want %q", got.Tone, ToneRiskOff)
	}
	if len(got.EventsToday) != 1 || got.EventsToday[0] != "FOMC decision" {
		t.Errorf("events = %+v", got.EventsToday)
	}
	if len(got.Headlines) != 3 {
		t.Fatalf("headlines = %+v", got.Headlines)
	}
	if got.Headlines[0] != "Inflation surges as rate hike looms" || got.Headlines[1] != "Markets plunge on tariff fears" {
		t.Errorf("negative titles not ranked first: %+v", got.Headlines)
	}
}

func TestBuild_RiskOn(t *testing.T) {
	feed := `<rss><channel><item><title>Fed rate cut fuels rally</title></item></channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feed))
	}))
	defer srv.Close()

	got := New(Config{Enable: true, FeedURLs: srv.URL}, srv.Client()).Build(context.Background(), testNow())
	if got == nil {
		t.Fatal("nil context")
	}
	if got.Tone != ToneRiskOn {
		t.Errorf("tone = %q (score %v), want %q", got.Tone, got.RiskScore, ToneRiskOn)
	}
}

func TestBuild_FeedFailureIsLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := Config{Enable: true, FeedURLs: srv.URL, HighImpactDates: "2025-06-03:BOK meeting"}
	got := New(cfg, srv.Client()).Build(context.Background(), testNow())
	if got == nil {
		t.Fatal("nil context")
	}
	if got.RiskScore != 50 || got.Tone != ToneLimited {
		t.Errorf("got score %v tone %q", got.RiskScore, got.Tone)
	}
	if len(got.EventsToday) != 1 {
		t.Errorf("events = %+v", got.EventsToday)
	}
}

func TestHighImpactToday(t *testing.T) {
	now := testNow()
	events := highImpactToday(now, "2025-06-03:FOMC; 2025-06-03: ;2025-06-04:CPI;garbage")
	if len(events) != 2 {
		t.Fatalf("events = %+v, want FOMC plus default label", events)
	}
	if events[0] != "FOMC" || events[1] != "high-impact event" {
		t.Errorf("events = %+v", events)
	}
	if got := highImpactToday(now, ""); got != nil {
		t.Errorf("empty spec = %+v", got)
	}
}
