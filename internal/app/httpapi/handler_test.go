package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app"
	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/pkg/testutil"
)

var testPair = bounty.Pair{Address: "pair-1", BaseDenom: "uatom", QuoteDenom: "uusdc"}

func newServer(t *testing.T) (*httptest.Server, *testutil.FakeBank) {
	t.Helper()

	fakeVenue := testutil.NewFakeVenue(testPair, decimal.NewFromInt(2))
	fakeBank := testutil.NewFakeBank()
	application, err := app.New(testutil.Config(), app.Stores{}, app.Collaborators{
		Venue:     fakeVenue,
		Bank:      fakeBank,
		Delegator: &testutil.FakeDelegator{},
		Addresses: &testutil.FakeAddressValidator{},
	}, nil)
	if err != nil {
		t.Fatalf("building application: %v", err)
	}

	server := httptest.NewServer(New(application, nil).Router())
	t.Cleanup(server.Close)
	return server, fakeBank
}

func doJSON(t *testing.T, method, url, sender string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if sender != "" {
		req.Header.Set("X-Sender", sender)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func createPayload() map[string]any {
	return map[string]any{
		"owner":         "prismo1owner",
		"funds":         []map[string]any{{"denom": "uusdc", "amount": 100000}},
		"pair_address":  testPair.Address,
		"swap_amount":   10000,
		"position_type": "enter",
		"time_interval": "24h",
	}
}

func TestCreateExecuteAndQueryFlow(t *testing.T) {
	server, bank := newServer(t)

	resp, created := doJSON(t, http.MethodPost, server.URL+"/v1/bounties", "", createPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, created)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("expected a bounty id in %v", created)
	}

	resp, outcome := doJSON(t, http.MethodPost, server.URL+"/v1/triggers/"+id+"/executions", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, outcome)
	}
	if outcome["result"] != "completed" {
		t.Fatalf("expected completed outcome, got %v", outcome)
	}
	if bank.SentTo("prismo1owner") == 0 {
		t.Fatal("expected proceeds distributed to the owner")
	}

	resp, fetched := doJSON(t, http.MethodGet, server.URL+"/v1/bounties/"+id, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if fetched["status"] != "active" {
		t.Fatalf("expected active status, got %v", fetched["status"])
	}

	// Re-executing before the new target time conflicts.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/v1/triggers/"+id+"/executions", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCancelRequiresAuthorizedSender(t *testing.T) {
	server, bank := newServer(t)

	resp, created := doJSON(t, http.MethodPost, server.URL+"/v1/bounties", "", createPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	id := created["id"].(string)

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/v1/bounties/"+id, "prismo1stranger", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/v1/bounties/"+id, "prismo1owner", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if bank.SentTo("prismo1owner") != 100000 {
		t.Fatalf("expected full refund, got %d", bank.SentTo("prismo1owner"))
	}
}

func TestDepositAndEvents(t *testing.T) {
	server, _ := newServer(t)

	resp, created := doJSON(t, http.MethodPost, server.URL+"/v1/bounties", "", createPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	id := created["id"].(string)

	deposit := map[string]any{"funds": []map[string]any{{"denom": "uusdc", "amount": 5000}}}
	resp, updated := doJSON(t, http.MethodPost, server.URL+"/v1/bounties/"+id+"/deposits", "prismo1owner", deposit)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, updated)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/v1/bounties/"+id+"/events", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/v1/bounties/999", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUpdateAndPerformance(t *testing.T) {
	server, _ := newServer(t)

	payload := createPayload()
	payload["target_receive_amount"] = 50000
	resp, created := doJSON(t, http.MethodPost, server.URL+"/v1/bounties", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, created)
	}
	id := created["id"].(string)

	update := map[string]any{"label": "weekly atom buys", "time_interval": "1h"}
	resp, _ = doJSON(t, http.MethodPatch, server.URL+"/v1/bounties/"+id, "prismo1stranger", update)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp, updated := doJSON(t, http.MethodPatch, server.URL+"/v1/bounties/"+id, "prismo1owner", update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, updated)
	}
	if updated["label"] != "weekly atom buys" {
		t.Fatalf("expected updated label, got %v", updated["label"])
	}

	resp, perf := doJSON(t, http.MethodGet, server.URL+"/v1/bounties/"+id+"/performance", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, perf)
	}
	if _, ok := perf["factor"]; !ok {
		t.Fatalf("expected a performance factor in %v", perf)
	}
}

func TestUnknownValidationErrorsReturnBadRequest(t *testing.T) {
	server, _ := newServer(t)

	payload := createPayload()
	payload["swap_amount"] = 200000 // exceeds funds
	resp, _ := doJSON(t, http.MethodPost, server.URL+"/v1/bounties", "", payload)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
