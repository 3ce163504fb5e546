// Package kisconnect is a client for the Korea Investment & Securities
// (KIS) Open API. It covers token issuance, request hashing, domestic
// stock quotations, cash orders and balance inquiry over REST, plus the
// realtime execution feed over websocket.
//
// Usage:
//
//	c := kisconnect.New(kisconnect.Config{
//	    AppKey:    os.Getenv("KIS_APP_KEY"),
//	    AppSecret: os.Getenv("KIS_APP_SECRET"),
//	    AccountNo: "12345678-01",
//	    Paper:     true,
//	})
//	rank, err := c.VolumeRank(ctx, 30)
package kisconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// Default endpoints. The paper (simulated) environment runs on its own
// host and its own set of tr_id codes.
const (
	realBaseURL  = "https://openapi.koreainvestment.com:9443"
	paperBaseURL = "https://openapivts.koreainvestment.com:29443"

	defaultTimeout = 7 * time.Second
)

var routes = map[string]string{
	"oauth.token":    "/oauth2/tokenP",
	"oauth.revoke":   "/oauth2/revokeP",
	"oauth.approval": "/oauth2/Approval",
	"hashkey":        "/uapi/hashkey",

	"quote.price":       "/uapi/domestic-stock/v1/quotations/inquire-price",
	"quote.daily":       "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice",
	"quote.asking":      "/uapi/domestic-stock/v1/quotations/inquire-asking-price-exp-ccn",
	"quote.volume-rank": "/uapi/domestic-stock/v1/quotations/volume-rank",

	"trade.order-cash": "/uapi/domestic-stock/v1/trading/order-cash",
	"trade.balance":    "/uapi/domestic-stock/v1/trading/inquire-balance",
}

// Transaction IDs per environment. KIS distinguishes real and paper
// trading by tr_id prefix (T vs V); quotation tr_ids are shared.
type trIDs struct {
	buyCash  string
	sellCash string
	balance  string
}

var (
	realTRIDs  = trIDs{buyCash: "TTTC0802U", sellCash: "TTTC0801U", balance: "TTTC8434R"}
	paperTRIDs = trIDs{buyCash: "VTTC0802U", sellCash: "VTTC0801U", balance: "VTTC8434R"}
)

const (
	trIDPrice      = "FHKST01010100"
	trIDDaily      = "FHKST03010100"
	trIDAsking     = "FHKST01010200"
	trIDVolumeRank = "FHPST01710000"
)

// Order division codes for order-cash.
const (
	OrdDvsnLimit  = "00"
	OrdDvsnMarket = "01"
)

// Config holds client credentials and environment selection.
type Config struct {
	AppKey    string
	AppSecret string
	AccountNo string // "CANO-PRDT", e.g. "12345678-01"

	// TOTPSecret, when set, is included as a one-time password with
	// order requests for accounts that require a second factor.
	TOTPSecret string

	BaseURL string // overrides the environment default (tests)
	Paper   bool
	Timeout time.Duration
}

// Client is a KIS Open API REST client. It is safe for concurrent use;
// the access token is refreshed lazily under a mutex.
type Client struct {
	cfg  Config
	base string
	tr   trIDs
	http *http.Client

	cano string // account number
	prdt string // account product code

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	now func() time.Time
}

// New builds a client. The token is issued on first use, not here.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	tr := realTRIDs
	if cfg.Paper {
		tr = paperTRIDs
	}
	if base == "" {
		if cfg.Paper {
			base = paperBaseURL
		} else {
			base = realBaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cano, prdt := splitAccount(cfg.AccountNo)

	return &Client{
		cfg:  cfg,
		base: strings.TrimRight(base, "/"),
		tr:   tr,
		http: &http.Client{Timeout: timeout},
		cano: cano,
		prdt: prdt,
		now:  time.Now,
	}
}

func splitAccount(acct string) (cano, prdt string) {
	if i := strings.IndexByte(acct, '-'); i >= 0 {
		return acct[:i], acct[i+1:]
	}
	if len(acct) > 8 {
		return acct[:8], acct[8:]
	}
	return acct, "01"
}

// APIError is a structured failure reported by the KIS API envelope
// (rt_cd other than "0").
type APIError struct {
	Route   string
	Code    string // msg_cd
	Message string // msg1
	HTTP    int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kis: %s: [%s] %s (http %d)", e.Route, e.Code, strings.TrimSpace(e.Message), e.HTTP)
}

// envelope is the common KIS response wrapper.
type envelope struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

// ---- Auth ----

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid access token, issuing a new one when the cached
// token is missing or within a minute of expiry.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && c.now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.cfg.AppKey,
		"appsecret":  c.cfg.AppSecret,
	}
	var tok tokenResponse
	if err := c.postJSON(ctx, "oauth.token", nil, body, &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("kis: token response missing access_token")
	}
	c.accessToken = tok.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// InvalidateToken drops the cached token so the next call re-issues.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// ApprovalKey issues the websocket approval key for the realtime feed.
func (c *Client) ApprovalKey(ctx context.Context) (string, error) {
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.cfg.AppKey,
		"secretkey":  c.cfg.AppSecret,
	}
	var out struct {
		ApprovalKey string `json:"approval_key"`
	}
	if err := c.postJSON(ctx, "oauth.approval", nil, body, &out); err != nil {
		return "", err
	}
	if out.ApprovalKey == "" {
		return "", fmt.Errorf("kis: approval response missing approval_key")
	}
	return out.ApprovalKey, nil
}

// Hashkey signs an order body. KIS requires the hash header on order
// POSTs to detect payload tampering.
func (c *Client) Hashkey(ctx context.Context, orderBody any) (string, error) {
	raw, err := json.Marshal(orderBody)
	if err != nil {
		return "", fmt.Errorf("kis: marshal hash body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+routes["hashkey"], bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("appkey", c.cfg.AppKey)
	req.Header.Set("appsecret", c.cfg.AppSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("kis: hashkey: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		Hash string `json:"HASH"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("kis: hashkey decode: %w", err)
	}
	if out.Hash == "" {
		return "", fmt.Errorf("kis: hashkey response missing HASH (http %d)", resp.StatusCode)
	}
	return out.Hash, nil
}

// ---- Quotations ----

// PriceOutput is the inquire-price payload. KIS returns every numeric
// field as a string; helpers below convert.
type PriceOutput struct {
	Symbol     string `json:"stck_shrn_iscd"`
	Price      string `json:"stck_prpr"`
	Open       string `json:"stck_oprc"`
	High       string `json:"stck_hgpr"`
	Low        string `json:"stck_lwpr"`
	PrevClose  string `json:"stck_sdpr"`
	Volume     string `json:"acml_vol"`
	Amount     string `json:"acml_tr_pbmn"`
	ChangeRate string `json:"prdy_ctrt"`
}

// InquirePrice returns the current quote for one symbol.
func (c *Client) InquirePrice(ctx context.Context, symbol string) (PriceOutput, error) {
	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {symbol},
	}
	var out struct {
		envelope
		Output PriceOutput `json:"output"`
	}
	if err := c.getJSON(ctx, "quote.price", trIDPrice, params, &out); err != nil {
		return PriceOutput{}, err
	}
	if err := out.envelope.check("quote.price"); err != nil {
		return PriceOutput{}, err
	}
	return out.Output, nil
}

// DailyPrice is one row of the daily chart payload.
type DailyPrice struct {
	Date   string `json:"stck_bsop_date"` // YYYYMMDD
	Open   string `json:"stck_oprc"`
	High   string `json:"stck_hgpr"`
	Low    string `json:"stck_lwpr"`
	Close  string `json:"stck_clpr"`
	Volume string `json:"acml_vol"`
	Amount string `json:"acml_tr_pbmn"`
}

// DailyPrices returns daily candles for [from, to], most recent first
// as KIS delivers them. Dates are YYYYMMDD.
func (c *Client) DailyPrices(ctx context.Context, symbol, from, to string) ([]DailyPrice, error) {
	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {symbol},
		"FID_INPUT_DATE_1":       {from},
		"FID_INPUT_DATE_2":       {to},
		"FID_PERIOD_DIV_CODE":    {"D"},
		"FID_ORG_ADJ_PRC":        {"0"},
	}
	var out struct {
		envelope
		Output2 []DailyPrice `json:"output2"`
	}
	if err := c.getJSON(ctx, "quote.daily", trIDDaily, params, &out); err != nil {
		return nil, err
	}
	if err := out.envelope.check("quote.daily"); err != nil {
		return nil, err
	}
	return out.Output2, nil
}

// AskingPriceOutput summarizes the order book depth totals.
type AskingPriceOutput struct {
	TotalBidQty string `json:"total_bidp_rsqn"`
	TotalAskQty string `json:"total_askp_rsqn"`
}

// AskingPrice returns bid/ask depth totals for one symbol.
func (c *Client) AskingPrice(ctx context.Context, symbol string) (AskingPriceOutput, error) {
	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {symbol},
	}
	var out struct {
		envelope
		Output1 AskingPriceOutput `json:"output1"`
	}
	if err := c.getJSON(ctx, "quote.asking", trIDAsking, params, &out); err != nil {
		return AskingPriceOutput{}, err
	}
	if err := out.envelope.check("quote.asking"); err != nil {
		return AskingPriceOutput{}, err
	}
	return out.Output1, nil
}

// VolumeRankRow is one entry of the trading-amount ranking.
type VolumeRankRow struct {
	Symbol     string `json:"mksc_shrn_iscd"`
	Name       string `json:"hts_kor_isnm"`
	Price      string `json:"stck_prpr"`
	Volume     string `json:"acml_vol"`
	Amount     string `json:"acml_tr_pbmn"`
	ChangeRate string `json:"prdy_ctrt"`
}

// VolumeRank returns up to count symbols ranked by accumulated trading
// amount across KOSPI and KOSDAQ.
func (c *Client) VolumeRank(ctx context.Context, count int) ([]VolumeRankRow, error) {
	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_COND_SCR_DIV_CODE":  {"20171"},
		"FID_INPUT_ISCD":         {"0000"},
		"FID_DIV_CLS_CODE":       {"0"},
		"FID_BLNG_CLS_CODE":      {"3"}, // rank by trading amount
		"FID_TRGT_CLS_CODE":      {"111111111"},
		"FID_TRGT_EXLS_CLS_CODE": {"000000"},
		"FID_INPUT_PRICE_1":      {""},
		"FID_INPUT_PRICE_2":      {""},
		"FID_VOL_CNT":            {""},
		"FID_INPUT_DATE_1":       {""},
	}
	var out struct {
		envelope
		Output []VolumeRankRow `json:"output"`
	}
	if err := c.getJSON(ctx, "quote.volume-rank", trIDVolumeRank, params, &out); err != nil {
		return nil, err
	}
	if err := out.envelope.check("quote.volume-rank"); err != nil {
		return nil, err
	}
	if count > 0 && len(out.Output) > count {
		out.Output = out.Output[:count]
	}
	return out.Output, nil
}

// ---- Trading ----

// OrderRequest is a domestic cash order.
type OrderRequest struct {
	Symbol   string
	Quantity int64
	Price    float64 // 0 with OrdDvsnMarket
	OrdDvsn  string  // OrdDvsnLimit or OrdDvsnMarket
}

// OrderOutput is the order-cash response payload.
type OrderOutput struct {
	KRXFwdgOrdOrgno string `json:"KRX_FWDG_ORD_ORGNO"`
	OrderNo         string `json:"ODNO"`
	OrderTime       string `json:"ORD_TMD"`
}

// BuyCash places a cash buy order.
func (c *Client) BuyCash(ctx context.Context, req OrderRequest) (OrderOutput, error) {
	return c.orderCash(ctx, c.tr.buyCash, req)
}

// SellCash places a cash sell order.
func (c *Client) SellCash(ctx context.Context, req OrderRequest) (OrderOutput, error) {
	return c.orderCash(ctx, c.tr.sellCash, req)
}

func (c *Client) orderCash(ctx context.Context, trID string, req OrderRequest) (OrderOutput, error) {
	ordDvsn := req.OrdDvsn
	if ordDvsn == "" {
		if req.Price <= 0 {
			ordDvsn = OrdDvsnMarket
		} else {
			ordDvsn = OrdDvsnLimit
		}
	}
	unpr := "0"
	if ordDvsn == OrdDvsnLimit {
		unpr = strconv.FormatInt(int64(req.Price), 10)
	}
	body := map[string]string{
		"CANO":         c.cano,
		"ACNT_PRDT_CD": c.prdt,
		"PDNO":         req.Symbol,
		"ORD_DVSN":     ordDvsn,
		"ORD_QTY":      strconv.FormatInt(req.Quantity, 10),
		"ORD_UNPR":     unpr,
	}
	if c.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, c.now())
		if err != nil {
			return OrderOutput{}, fmt.Errorf("kis: totp: %w", err)
		}
		body["OTP"] = code
	}

	hash, err := c.Hashkey(ctx, body)
	if err != nil {
		return OrderOutput{}, err
	}

	var out struct {
		envelope
		Output OrderOutput `json:"output"`
	}
	hdr := map[string]string{"hashkey": hash}
	if err := c.doJSON(ctx, http.MethodPost, "trade.order-cash", trID, nil, body, hdr, &out); err != nil {
		return OrderOutput{}, err
	}
	if err := out.envelope.check("trade.order-cash"); err != nil {
		return OrderOutput{}, err
	}
	return out.Output, nil
}

// BalanceHolding is one held symbol in the balance inquiry.
type BalanceHolding struct {
	Symbol       string `json:"pdno"`
	Name         string `json:"prdt_name"`
	Quantity     string `json:"hldg_qty"`
	AvgPrice     string `json:"pchs_avg_pric"`
	CurrentPrice string `json:"prpr"`
	EvalAmount   string `json:"evlu_amt"`
}

// BalanceTotals is the account-level summary row of the balance inquiry.
type BalanceTotals struct {
	CashAvailable   string `json:"dnca_tot_amt"`
	StockEvalAmount string `json:"scts_evlu_amt"`
	TotalEvalAmount string `json:"tot_evlu_amt"`
}

// InquireBalance returns held symbols and the account summary.
func (c *Client) InquireBalance(ctx context.Context) ([]BalanceHolding, BalanceTotals, error) {
	params := url.Values{
		"CANO":                  {c.cano},
		"ACNT_PRDT_CD":          {c.prdt},
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
	var out struct {
		envelope
		Output1 []BalanceHolding `json:"output1"`
		Output2 []BalanceTotals  `json:"output2"`
	}
	if err := c.getJSON(ctx, "trade.balance", c.tr.balance, params, &out); err != nil {
		return nil, BalanceTotals{}, err
	}
	if err := out.envelope.check("trade.balance"); err != nil {
		return nil, BalanceTotals{}, err
	}
	totals := BalanceTotals{}
	if len(out.Output2) > 0 {
		totals = out.Output2[0]
	}
	return out.Output1, totals, nil
}

// ---- Request plumbing ----

func (e envelope) check(route string) error {
	if e.RtCd != "" && e.RtCd != "0" {
		return &APIError{Route: route, Code: e.MsgCd, Message: e.Msg1}
	}
	return nil
}

// postJSON is for the unauthenticated oauth endpoints.
func (c *Client) postJSON(ctx context.Context, route string, params url.Values, body, dst any) error {
	return c.doJSON(ctx, http.MethodPost, route, "", params, body, nil, dst)
}

// getJSON runs an authenticated GET with the given tr_id.
func (c *Client) getJSON(ctx context.Context, route, trID string, params url.Values, dst any) error {
	return c.doJSON(ctx, http.MethodGet, route, trID, params, nil, nil, dst)
}

func (c *Client) doJSON(ctx context.Context, method, route, trID string, params url.Values, body any, extraHdr map[string]string, dst any) error {
	path, ok := routes[route]
	if !ok {
		return fmt.Errorf("kis: unknown route %q", route)
	}
	full := c.base + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kis: marshal %s body: %w", route, err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if trID != "" {
		tok, err := c.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("authorization", "Bearer "+tok)
		req.Header.Set("appkey", c.cfg.AppKey)
		req.Header.Set("appsecret", c.cfg.AppSecret)
		req.Header.Set("tr_id", trID)
		req.Header.Set("custtype", "P")
	}
	for k, v := range extraHdr {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kis: %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kis: %s: read body: %w", route, err)
	}
	if resp.StatusCode != http.StatusOK {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		return &APIError{Route: route, Code: env.MsgCd, Message: firstNonEmpty(env.Msg1, string(raw)), HTTP: resp.StatusCode}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("kis: %s: decode: %w", route, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ParseFloat converts a KIS string number, returning 0 for blanks.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseInt converts a KIS string integer, returning 0 for blanks.
func ParseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
