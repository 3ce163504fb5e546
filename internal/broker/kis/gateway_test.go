package kis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jaengyi/RedArrow/internal/broker"
	"github.com/jaengyi/RedArrow/pkg/kisconnect"
)

func newTestGateway(t *testing.T, mux *http.ServeMux) *Gateway {
	t.Helper()
	mux.HandleFunc("/oauth2/tokenP", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 86400})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(kisconnect.New(kisconnect.Config{
		AppKey: "k", AppSecret: "s", AccountNo: "12345678-01",
		BaseURL: srv.URL, Paper: true,
	}))
}

func TestHistoricalDataOldestFirstAndTrimmed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "0",
			"output2": []map[string]string{
				{"stck_bsop_date": "20260902", "stck_oprc": "70100", "stck_hgpr": "70500", "stck_lwpr": "69800", "stck_clpr": "70300", "acml_vol": "900"},
				{"stck_bsop_date": "20260901", "stck_oprc": "69900", "stck_hgpr": "70200", "stck_lwpr": "69500", "stck_clpr": "70000", "acml_vol": "800"},
				{"stck_bsop_date": "20260831", "stck_oprc": "69500", "stck_hgpr": "70000", "stck_lwpr": "69300", "stck_clpr": "69800", "acml_vol": "700"},
			},
		})
	})
	g := newTestGateway(t, mux)

	bars, err := g.HistoricalData(context.Background(), "005930", 2)
	if err != nil {
		t.Fatalf("HistoricalData: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if !bars[0].TS.Before(bars[1].TS) {
		t.Error("bars not oldest first")
	}
	if bars[1].Close != 70300 {
		t.Errorf("latest close = %v, want 70300", bars[1].Close)
	}
}

func TestHistoricalDataEmptyIsDataUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"rt_cd": "0", "output2": []any{}})
	})
	g := newTestGateway(t, mux)

	_, err := g.HistoricalData(context.Background(), "999999", 30)
	if !broker.IsDataUnavailable(err) {
		t.Fatalf("err = %v, want DataUnavailableError", err)
	}
}

func TestOrderDeclineMapsToRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/uapi/hashkey", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"HASH": "h"})
	})
	mux.HandleFunc("/uapi/domestic-stock/v1/trading/order-cash", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "1", "msg_cd": "APBK0952", "msg1": "주문가능금액을 초과했습니다.",
		})
	})
	g := newTestGateway(t, mux)

	_, err := g.PlaceBuyOrder(context.Background(), "005930", 100, 0)
	if !broker.IsOrderRejected(err) {
		t.Fatalf("err = %v, want OrderRejectedError", err)
	}
}

func TestPositionsDropsZeroQuantity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/uapi/domestic-stock/v1/trading/inquire-balance", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "0",
			"output1": []map[string]string{
				{"pdno": "005930", "prdt_name": "삼성전자", "hldg_qty": "14", "pchs_avg_pric": "70035.00", "prpr": "70500"},
				{"pdno": "000660", "prdt_name": "SK하이닉스", "hldg_qty": "0", "pchs_avg_pric": "180000", "prpr": "181000"},
			},
			"output2": []map[string]string{
				{"dnca_tot_amt": "9019510", "scts_evlu_amt": "987000", "tot_evlu_amt": "10006510"},
			},
		})
	})
	g := newTestGateway(t, mux)

	positions, err := g.Positions(context.Background())
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions) != 1 || positions[0].Symbol != "005930" {
		t.Fatalf("positions = %+v", positions)
	}

	bal, err := g.AccountBalance(context.Background())
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if bal.TotalAssets != 10006510 {
		t.Errorf("TotalAssets = %v", bal.TotalAssets)
	}
}

func TestQuoteEnvelopeErrorIsDataUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/uapi/domestic-stock/v1/quotations/inquire-price", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "1", "msg_cd": "EGW00123", "msg1": "조회할 자료가 없습니다.",
		})
	})
	g := newTestGateway(t, mux)

	// A per-symbol API failure is not a broker outage: it must skip the
	// symbol, not feed the connectivity budget.
	_, err := g.StockPrice(context.Background(), "999999")
	if !broker.IsDataUnavailable(err) {
		t.Fatalf("err = %v, want DataUnavailableError", err)
	}
	if broker.IsConnectivity(err) {
		t.Error("quote envelope error classified as connectivity")
	}
}

func TestBalanceEnvelopeErrorIsConnectivity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/uapi/domestic-stock/v1/trading/inquire-balance", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "1", "msg_cd": "EGW00121", "msg1": "유효하지 않은 token 입니다.",
		})
	})
	g := newTestGateway(t, mux)

	// Account routes fail for systemic reasons (expired token, bad
	// credentials); those block trading and must count as connectivity.
	_, err := g.AccountBalance(context.Background())
	if !broker.IsConnectivity(err) {
		t.Fatalf("err = %v, want ConnectivityError", err)
	}
}
