package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/observability"
	"krx-momentum-lab/internal/stats"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

// KIS OpenAPI endpoints.
const (
	kisLiveBaseURL  = "https://openapi.koreainvestment.com:9443"
	kisPaperBaseURL = "https://openapivts.koreainvestment.com:29443"

	kisRequestTimeout = 15 * time.Second
	kisRetryAttempts  = 3
	kisRetryBackoff   = time.Second

	// Per-cycle API call budgets, matching the upstream rate limits.
	maxFlowCalls   = 100
	maxSectorCalls = 120
)

// tokenStateKey caches the access token in the bot-state store.
const tokenStateKey = "kis_access_token"

// KISConfig holds the credentials and account for the KIS provider.
type KISConfig struct {
	AppKey    string
	AppSecret string
	AccountNo string
	IsPaper   bool
}

// KISProvider implements MarketDataProvider against the KIS OpenAPI,
// plus the BrokerExecution and BuyingPowerInquirer capabilities when
// an account number is configured.
type KISProvider struct {
	cfg     KISConfig
	baseURL string
	client  *http.Client
	session *tokenSession

	sectorCache map[string]string
}

// NewKIS creates a KIS provider. botState backs the token cache; nil
// disables persistence (the token is still held in memory).
func NewKIS(cfg KISConfig, client *http.Client, botState storage.BotStateStore) (*KISProvider, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return nil, errors.New("kis: app key and secret are required")
	}
	if client == nil {
		client = &http.Client{Timeout: kisRequestTimeout}
	}
	baseURL := kisLiveBaseURL
	if cfg.IsPaper {
		baseURL = kisPaperBaseURL
	}
	p := &KISProvider{
		cfg:         cfg,
		baseURL:     baseURL,
		client:      client,
		sectorCache: make(map[string]string),
	}
	p.session = &tokenSession{provider: p, store: botState}
	return p, nil
}

// kisEnvelope is the common response wrapper.
type kisEnvelope struct {
	RtCd  string          `json:"rt_cd"`
	MsgCd string          `json:"msg_cd"`
	Msg1  string          `json:"msg1"`
	Raw   json.RawMessage `json:"-"`
}

// request performs one HTTP call with the fixed retry policy and
// decodes the envelope. The raw body is returned for payload decoding.
func (p *KISProvider) request(ctx context.Context, method, path string, headers map[string]string, params url.Values, body any) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < kisRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(kisRetryBackoff):
			}
		}
		raw, err := p.doRequest(ctx, method, path, headers, params, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *KISProvider) doRequest(ctx context.Context, method, path string, headers map[string]string, params url.Values, body any) ([]byte, error) {
	endpoint := p.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("kis: encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("kis: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kis: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("kis: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("kis: HTTP %d %s %s: %s", resp.StatusCode, method, path, truncateBytes(raw, 400))
	}
	var env kisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("kis: decode envelope: %w", err)
	}
	if env.RtCd != "" && env.RtCd != "0" {
		return nil, fmt.Errorf("kis: API error %s: %s", env.MsgCd, env.Msg1)
	}
	return raw, nil
}

// apiGet performs an authenticated GET with the given transaction id.
func (p *KISProvider) apiGet(ctx context.Context, path, trID string, params url.Values) ([]byte, error) {
	token, err := p.session.token(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"authorization": "Bearer " + token,
		"appkey":        p.cfg.AppKey,
		"appsecret":     p.cfg.AppSecret,
		"tr_id":         trID,
		"custtype":      "P",
	}
	started := time.Now()
	raw, err := p.request(ctx, http.MethodGet, path, headers, params, nil)
	observability.RecordProviderCall(trID, time.Since(started).Seconds(), err)
	return raw, err
}

// ApprovalKey issues the websocket approval key that the realtime
// quote stream pairs with every subscribe frame.
func (p *KISProvider) ApprovalKey(ctx context.Context) (string, error) {
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     p.cfg.AppKey,
		"secretkey":  p.cfg.AppSecret,
	}
	raw, err := p.request(ctx, http.MethodPost, "/oauth2/Approval", nil, nil, body)
	if err != nil {
		return "", fmt.Errorf("kis: issue approval key: %w", err)
	}
	var payload struct {
		ApprovalKey string `json:"approval_key"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("kis: decode approval key: %w", err)
	}
	if payload.ApprovalKey == "" {
		return "", errors.New("kis: approval response without approval_key")
	}
	return payload.ApprovalKey, nil
}

// Universe builds the scan universe from the volume-rank ranking. The
// spec string is informational; KIS ranks across KRX as one book.
func (p *KISProvider) Universe(ctx context.Context, spec string) ([]domain.UniverseEntry, error) {
	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_COND_SCR_DIV_CODE":  {"20171"},
		"FID_INPUT_ISCD":         {"0000"},
		"FID_DIV_CLS_CODE":       {"0"},
		"FID_BLNG_CLS_CODE":      {"3"},
		"FID_TRGT_CLS_CODE":      {"111111111"},
		"FID_TRGT_EXLS_CLS_CODE": {"0000000000"},
		"FID_INPUT_PRICE_1":      {"0"},
		"FID_INPUT_PRICE_2":      {"1000000"},
		"FID_VOL_CNT":            {"0"},
		"FID_INPUT_DATE_1":       {""},
	}
	raw, err := p.apiGet(ctx, "/uapi/domestic-stock/v1/quotations/volume-rank", "FHPST01710000", params)
	if err != nil {
		return nil, fmt.Errorf("volume-rank: %w", err)
	}
	var payload struct {
		Output []struct {
			Ticker string `json:"mksc_shrn_iscd"`
			Name   string `json:"hts_kor_isnm"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("volume-rank: decode: %w", err)
	}
	entries := make([]domain.UniverseEntry, 0, len(payload.Output))
	for _, item := range payload.Output {
		ticker := strings.TrimSpace(item.Ticker)
		if ticker == "" {
			continue
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = ticker
		}
		entries = append(entries, domain.UniverseEntry{Ticker: ticker, Name: name, Market: "KRX"})
		if len(entries) == 220 {
			break
		}
	}
	if len(entries) == 0 {
		return nil, errors.New("kis: volume-rank returned an empty universe")
	}
	return entries, nil
}

// LatestOHLCV fetches bars per ticker. For sub-daily intervals the
// intraday chart is aggregated to hours, falling back to dailies when
// the intraday book is too thin. Per-ticker failures skip the ticker.
func (p *KISProvider) LatestOHLCV(ctx context.Context, tickers []string, interval string) (map[string][]domain.Bar, error) {
	out := make(map[string][]domain.Bar, len(tickers))
	for _, ticker := range tickers {
		var bars []domain.Bar
		var err error
		if interval == "1d" {
			bars, err = p.fetchDaily(ctx, ticker)
		} else {
			bars, err = p.fetchIntradayHourly(ctx, ticker)
			if err != nil || len(bars) < 5 {
				bars, err = p.fetchDaily(ctx, ticker)
			}
		}
		if err != nil || len(bars) == 0 {
			continue
		}
		out[ticker] = bars
	}
	return out, nil
}

func (p *KISProvider) fetchDaily(ctx context.Context, ticker string) ([]domain.Bar, error) {
	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {ticker},
		"FID_PERIOD_DIV_CODE":    {"D"},
		"FID_ORG_ADJ_PRC":        {"1"},
	}
	raw, err := p.apiGet(ctx, "/uapi/domestic-stock/v1/quotations/inquire-daily-price", "FHKST01010400", params)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Output []struct {
			Date   string `json:"stck_bsop_date"`
			Open   string `json:"stck_oprc"`
			High   string `json:"stck_hgpr"`
			Low    string `json:"stck_lwpr"`
			Close  string `json:"stck_clpr"`
			Volume string `json:"acml_vol"`
			Value  string `json:"acml_tr_pbmn"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("daily-price: decode: %w", err)
	}
	bars := make([]domain.Bar, 0, len(payload.Output))
	for _, item := range payload.Output {
		ts, err := time.ParseInLocation("20060102", item.Date, timeutil.KST)
		if err != nil {
			continue
		}
		closePx := toFloat(item.Close)
		volume := toFloat(item.Volume)
		value := toFloat(item.Value)
		if value <= 0 {
			value = closePx * volume
		}
		bars = append(bars, domain.Bar{
			Ticker: ticker,
			TS:     ts,
			Open:   toFloat(item.Open),
			High:   toFloat(item.High),
			Low:    toFloat(item.Low),
			Close:  closePx,
			Volume: volume,
			Value:  value,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	return bars, nil
}

// fetchIntradayHourly pulls the minute chart and buckets it to hours.
// Cumulative volume/value columns are diffed into per-minute deltas
// before aggregation.
func (p *KISProvider) fetchIntradayHourly(ctx context.Context, ticker string) ([]domain.Bar, error) {
	now := timeutil.NowKST()
	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {ticker},
		"FID_INPUT_HOUR_1":       {now.Format("150405")},
		"FID_PW_DATA_INCU_YN":    {"Y"},
		"FID_ETC_CLS_CODE":       {""},
	}
	raw, err := p.apiGet(ctx, "/uapi/domestic-stock/v1/quotations/inquire-time-itemchartprice", "FHKST03010200", params)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Output2 []struct {
			Date   string `json:"stck_bsop_date"`
			Hour   string `json:"stck_cntg_hour"`
			Price  string `json:"stck_prpr"`
			Open   string `json:"stck_oprc"`
			High   string `json:"stck_hgpr"`
			Low    string `json:"stck_lwpr"`
			Volume string `json:"cntg_vol"`
			Value  string `json:"acml_tr_pbmn"`
		} `json:"output2"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("itemchartprice: decode: %w", err)
	}

	type minuteBar struct {
		ts            time.Time
		open, high    float64
		low, closePx  float64
		volume, value float64
	}
	minutes := make([]minuteBar, 0, len(payload.Output2))
	day := now.Format("20060102")
	for _, item := range payload.Output2 {
		d := item.Date
		if d == "" {
			d = day
		}
		hhmmss := item.Hour
		for len(hhmmss) < 6 {
			hhmmss = "0" + hhmmss
		}
		ts, err := time.ParseInLocation("20060102150405", d+hhmmss, timeutil.KST)
		if err != nil {
			continue
		}
		px := toFloat(item.Price)
		minutes = append(minutes, minuteBar{
			ts:      ts,
			open:    toFloatOr(item.Open, px),
			high:    toFloatOr(item.High, px),
			low:     toFloatOr(item.Low, px),
			closePx: px,
			volume:  toFloat(item.Volume),
			value:   toFloat(item.Value),
		})
	}
	if len(minutes) == 0 {
		return nil, nil
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i].ts.Before(minutes[j].ts) })

	// Value arrives cumulative within the day; diff it to deltas.
	maxValue := 0.0
	for _, m := range minutes {
		if m.value > maxValue {
			maxValue = m.value
		}
	}
	if maxValue > 0 {
		prev := 0.0
		for i := range minutes {
			delta := minutes[i].value - prev
			prev = minutes[i].value
			if delta < 0 {
				delta = 0
			}
			minutes[i].value = delta
		}
	} else {
		for i := range minutes {
			minutes[i].value = minutes[i].closePx * minutes[i].volume
		}
	}

	var bars []domain.Bar
	for _, m := range minutes {
		hour := m.ts.Truncate(time.Hour)
		if len(bars) == 0 || !bars[len(bars)-1].TS.Equal(hour) {
			bars = append(bars, domain.Bar{
				Ticker: ticker, TS: hour,
				Open: m.open, High: m.high, Low: m.low, Close: m.closePx,
				Volume: m.volume, Value: m.value,
			})
			continue
		}
		last := &bars[len(bars)-1]
		if m.high > last.High {
			last.High = m.high
		}
		if m.low < last.Low {
			last.Low = m.low
		}
		last.Close = m.closePx
		last.Volume += m.volume
		last.Value += m.value
	}
	return bars, nil
}

// InvestorFlow sums foreign+institutional-retail net buying per ticker
// and squashes it to [-1, 1]. Call budget caps the per-cycle fan-out;
// tickers past the cap or failing are neutral.
func (p *KISProvider) InvestorFlow(ctx context.Context, tickers []string, windowDays int) (map[string]float64, error) {
	out := make(map[string]float64, len(tickers))
	today := timeutil.NowKST().Format("20060102")
	for i, ticker := range tickers {
		if i >= maxFlowCalls {
			out[ticker] = 0
			continue
		}
		out[ticker] = p.fetchFlowScore(ctx, ticker, today)
	}
	return out, nil
}

func (p *KISProvider) fetchFlowScore(ctx context.Context, ticker, today string) float64 {
	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {ticker},
		"FID_INPUT_DATE_1":       {today},
		"FID_ORG_ADJ_PRC":        {""},
		"FID_ETC_CLS_CODE":       {""},
	}
	raw, err := p.apiGet(ctx, "/uapi/domestic-stock/v1/quotations/investor-trade-by-stock-daily", "FHPTJ04160001", params)
	if err != nil {
		return 0
	}
	var payload struct {
		Output1 []flowRow `json:"output1"`
		Output2 []flowRow `json:"output2"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0
	}
	var score float64
	for _, row := range append(payload.Output1, payload.Output2...) {
		score += toFloat(row.FrgnNtbyQty) + toFloat(row.OrgnNtbyQty) - toFloat(row.PrsnNtbyQty)
	}
	return stats.Clamp(score/1_000_000, -1, 1)
}

type flowRow struct {
	FrgnNtbyQty string `json:"frgn_ntby_qty"`
	OrgnNtbyQty string `json:"orgn_ntby_qty"`
	PrsnNtbyQty string `json:"prsn_ntby_qty"`
}

// SectorMap resolves sector names with a per-instance cache. Tickers
// past the call budget or failing resolve to UNKNOWN.
func (p *KISProvider) SectorMap(ctx context.Context, tickers []string) (map[string]string, error) {
	out := make(map[string]string, len(tickers))
	calls := 0
	for _, ticker := range tickers {
		if sector, ok := p.sectorCache[ticker]; ok {
			out[ticker] = sector
			continue
		}
		if calls >= maxSectorCalls {
			out[ticker] = "UNKNOWN"
			continue
		}
		calls++
		sector := p.fetchSector(ctx, ticker)
		p.sectorCache[ticker] = sector
		out[ticker] = sector
	}
	return out, nil
}

func (p *KISProvider) fetchSector(ctx context.Context, ticker string) string {
	params := url.Values{
		"PRDT_TYPE_CD": {"300"},
		"PDNO":         {ticker},
	}
	raw, err := p.apiGet(ctx, "/uapi/domestic-stock/v1/quotations/search-stock-info", "CTPF1002R", params)
	if err != nil {
		return "UNKNOWN"
	}
	var payload struct {
		Output struct {
			SectorSmall string `json:"idx_bztp_scls_cd_name"`
			SectorStd   string `json:"std_idst_clsf_cd_name"`
			SectorLarge string `json:"idx_bztp_lcls_cd_name"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "UNKNOWN"
	}
	for _, s := range []string{payload.Output.SectorSmall, payload.Output.SectorStd, payload.Output.SectorLarge} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return "UNKNOWN"
}

// toFloat parses KIS numeric strings, tolerating commas and blanks.
func toFloat(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func toFloatOr(s string, def float64) float64 {
	if v := toFloat(s); v != 0 {
		return v
	}
	return def
}

func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
