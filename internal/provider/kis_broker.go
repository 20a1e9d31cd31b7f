package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/timeutil"
)

// Broker transaction ids, live/paper pairs.
var (
	trInquireBalance = trPair{"TTTC8434R", "VTTC8434R"}
	trOrderBuy       = trPair{"TTTC0802U", "VTTC0802U"}
	trOrderSell      = trPair{"TTTC0801U", "VTTC0801U"}
	trPsblOrder      = trPair{"TTTC8908R", "VTTC8908R"}
)

type trPair struct{ live, paper string }

func (t trPair) pick(isPaper bool) string {
	if isPaper {
		return t.paper
	}
	return t.live
}

// accountParts splits "12345678-01" into CANO and ACNT_PRDT_CD.
func (p *KISProvider) accountParts() (cano, prdt string, err error) {
	acct := strings.TrimSpace(p.cfg.AccountNo)
	cano, prdt, ok := strings.Cut(acct, "-")
	if !ok {
		if len(acct) == 10 {
			return acct[:8], acct[8:], nil
		}
		return "", "", fmt.Errorf("kis: malformed account number %q", acct)
	}
	if cano == "" || prdt == "" {
		return "", "", fmt.Errorf("kis: malformed account number %q", acct)
	}
	return cano, prdt, nil
}

// InquireBalance fetches the account snapshot with open positions.
func (p *KISProvider) InquireBalance(ctx context.Context) (*Balance, error) {
	cano, prdt, err := p.accountParts()
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"CANO":                  {cano},
		"ACNT_PRDT_CD":          {prdt},
		"AFHR_FLPR_YN":          {"N"},
		"OFL_YN":                {""},
		"INQR_DVSN":             {"02"},
		"UNPR_DVSN":             {"01"},
		"FUND_STTL_ICLD_YN":     {"N"},
		"FNCG_AMT_AUTO_RDPT_YN": {"N"},
		"PRCS_DVSN":             {"00"},
		"CTX_AREA_FK100":        {""},
		"CTX_AREA_NK100":        {""},
	}
	raw, err := p.apiGet(ctx, "/uapi/domestic-stock/v1/trading/inquire-balance", trInquireBalance.pick(p.cfg.IsPaper), params)
	if err != nil {
		return nil, fmt.Errorf("inquire-balance: %w", err)
	}
	var payload struct {
		Output1 []struct {
			Ticker     string `json:"pdno"`
			Name       string `json:"prdt_name"`
			Qty        string `json:"hldg_qty"`
			AvgPrice   string `json:"pchs_avg_pric"`
			LastPrice  string `json:"prpr"`
			EvalAmount string `json:"evlu_amt"`
			PnlAmount  string `json:"evlu_pfls_amt"`
			PnlRate    string `json:"evlu_pfls_rt"`
		} `json:"output1"`
		Output2 []struct {
			Cash       string `json:"dnca_tot_amt"`
			DepositD2  string `json:"prvs_rcdl_excc_amt"`
			TotalEval  string `json:"scts_evlu_amt"`
			TotalAsset string `json:"tot_evlu_amt"`
		} `json:"output2"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("inquire-balance: decode: %w", err)
	}
	bal := &Balance{}
	if len(payload.Output2) > 0 {
		o := payload.Output2[0]
		bal.Cash = toFloat(o.Cash)
		bal.DepositCash = toFloatOr(o.DepositD2, bal.Cash)
		bal.TotalEval = toFloat(o.TotalEval)
		bal.TotalAsset = toFloat(o.TotalAsset)
	}
	for _, pos := range payload.Output1 {
		qty := int64(toFloat(pos.Qty))
		ticker := strings.TrimSpace(pos.Ticker)
		if qty <= 0 || ticker == "" {
			continue
		}
		bal.Positions = append(bal.Positions, domain.LivePosition{
			Ticker:     ticker,
			Name:       strings.TrimSpace(pos.Name),
			Qty:        qty,
			AvgPrice:   toFloat(pos.AvgPrice),
			LastPrice:  toFloat(pos.LastPrice),
			EvalAmount: toFloat(pos.EvalAmount),
			PnlAmount:  toFloat(pos.PnlAmount),
			PnlPct:     toFloat(pos.PnlRate) / 100,
			Updated:    timeutil.NowKST(),
		})
	}
	return bal, nil
}

// PlaceCashOrder submits a domestic cash order. Market orders pass
// price 0 with the market order type.
func (p *KISProvider) PlaceCashOrder(ctx context.Context, ticker string, qty int64, side, orderType string, price float64) (*OrderResult, error) {
	if qty <= 0 {
		return nil, errors.New("kis: order qty must be positive")
	}
	cano, prdt, err := p.accountParts()
	if err != nil {
		return nil, err
	}
	tr := trOrderSell
	if side == domain.SideBuy {
		tr = trOrderBuy
	}
	body := map[string]string{
		"CANO":         cano,
		"ACNT_PRDT_CD": prdt,
		"PDNO":         ticker,
		"ORD_DVSN":     orderType,
		"ORD_QTY":      strconv.FormatInt(qty, 10),
		"ORD_UNPR":     strconv.FormatInt(int64(price), 10),
	}
	token, err := p.session.token(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"authorization": "Bearer " + token,
		"appkey":        p.cfg.AppKey,
		"appsecret":     p.cfg.AppSecret,
		"tr_id":         tr.pick(p.cfg.IsPaper),
		"custtype":      "P",
	}
	raw, err := p.request(ctx, http.MethodPost, "/uapi/domestic-stock/v1/trading/order-cash", headers, nil, body)
	if err != nil {
		return nil, fmt.Errorf("order-cash %s %s: %w", side, ticker, err)
	}
	var payload struct {
		Output struct {
			OrderNo string `json:"ODNO"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("order-cash: decode: %w", err)
	}
	return &OrderResult{OrderNo: strings.TrimSpace(payload.Output.OrderNo)}, nil
}

// InquireBuyingPower reports the broker's order capacity for a quote.
func (p *KISProvider) InquireBuyingPower(ctx context.Context, ticker string, price float64, orderType string) (*BuyingPower, error) {
	cano, prdt, err := p.accountParts()
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"CANO":                 {cano},
		"ACNT_PRDT_CD":         {prdt},
		"PDNO":                 {ticker},
		"ORD_UNPR":             {strconv.FormatInt(int64(price), 10)},
		"ORD_DVSN":             {orderType},
		"CMA_EVLU_AMT_ICLD_YN": {"N"},
		"OVRS_ICLD_YN":         {"N"},
	}
	raw, err := p.apiGet(ctx, "/uapi/domestic-stock/v1/trading/inquire-psbl-order", trPsblOrder.pick(p.cfg.IsPaper), params)
	if err != nil {
		return nil, fmt.Errorf("inquire-psbl-order: %w", err)
	}
	var payload struct {
		Output struct {
			MaxBuyQty   string `json:"max_buy_qty"`
			MaxBuyAmt   string `json:"max_buy_amt"`
			OrdPsblCash string `json:"ord_psbl_cash"`
			NrcvbBuyQty string `json:"nrcvb_buy_qty"`
			NrcvbBuyAmt string `json:"nrcvb_buy_amt"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("inquire-psbl-order: decode: %w", err)
	}
	o := payload.Output
	qty := int64(toFloat(o.MaxBuyQty))
	if n := int64(toFloat(o.NrcvbBuyQty)); n > qty {
		qty = n
	}
	amt := toFloat(o.MaxBuyAmt)
	if n := toFloat(o.NrcvbBuyAmt); n > amt {
		amt = n
	}
	return &BuyingPower{
		MaxBuyQty:   qty,
		MaxBuyAmt:   amt,
		OrdPsblCash: toFloat(o.OrdPsblCash),
	}, nil
}
