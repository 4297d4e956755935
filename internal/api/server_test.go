package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"pingpay/internal/chain"
	"pingpay/internal/errs"
	"pingpay/internal/interpreter"
	"pingpay/internal/lifecycle"
	"pingpay/internal/models"
	"pingpay/internal/notify"
)

// emptyStore answers every lookup with "nothing there". Enough to
// exercise routing and error mapping.
type emptyStore struct{}

func (emptyStore) CreateTransfer(context.Context, *models.Transfer) error { return nil }
func (emptyStore) GetTransferByID(context.Context, string) (*models.Transfer, error) {
	return nil, nil
}
func (emptyStore) GetTransferByClaimToken(context.Context, string) (*models.Transfer, error) {
	return nil, nil
}
func (emptyStore) MarkTransferConfirmed(context.Context, string, string, uint64) (bool, error) {
	return false, nil
}
func (emptyStore) MarkTransferClaimed(context.Context, string) (*models.Transfer, error) {
	return nil, nil
}
func (emptyStore) MarkTransferFailed(context.Context, string) (bool, error) { return false, nil }
func (emptyStore) ListTransfersBySenderAddress(context.Context, string) ([]models.Transfer, error) {
	return nil, nil
}
func (emptyStore) ListTransfersBySenderHandle(context.Context, string) ([]models.Transfer, error) {
	return nil, nil
}
func (emptyStore) ListUnclaimedForRecipient(context.Context, string) ([]models.Transfer, error) {
	return nil, nil
}

type emptyWallets struct{}

func (emptyWallets) GetOrCreate(_ context.Context, handle string) (*models.Wallet, error) {
	return &models.Wallet{Handle: models.NormalizeHandle(handle), Address: "0xabc"}, nil
}
func (emptyWallets) Provision(_ context.Context, handle string) (*models.Wallet, bool, error) {
	return &models.Wallet{Handle: models.NormalizeHandle(handle), Address: "0xabc"}, true, nil
}
func (emptyWallets) Wallet(_ context.Context, handle string) (*models.Wallet, error) {
	return nil, errs.Newf(errs.NotFound, "no wallet for handle %q", handle)
}
func (emptyWallets) Balance(context.Context, string) string { return "0" }
func (emptyWallets) Send(context.Context, string, string, *big.Int) (string, *big.Int, error) {
	return "", nil, errs.New(errs.InsufficientFunds, "balance is below requested")
}
func (emptyWallets) SendAll(context.Context, string, string) (string, *big.Int, error) {
	return "", nil, errs.New(errs.InsufficientFunds, "no token balance to withdraw")
}

type emptyVerifier struct{}

func (emptyVerifier) VerifyTransfer(context.Context, string, string, *big.Int) (*chain.VerifiedTransfer, error) {
	return nil, errs.New(errs.TransactionNotFound, "transaction not found")
}
func (emptyVerifier) EstimateFee(context.Context) models.FeeEstimate {
	return models.FeeEstimate{GasLimit: "100000", GasPrice: "0.1", EstimatedCost: "0.00001"}
}
func (emptyVerifier) ExplorerURL(txHash string) string { return "https://example.test/tx/" + txHash }
func (emptyVerifier) TokenAddress() string {
	return "0x0050EAB3c59C945aE92858121c88752e8871185D"
}

type nopEmitter struct{}

func (nopEmitter) EmitEvent(models.TransferEvent) error { return nil }

func newTestHandler() http.Handler {
	manager := lifecycle.NewManager(emptyStore{}, emptyWallets{}, emptyVerifier{}, notify.Nop{}, nopEmitter{}, zerolog.New(nil))
	return NewServer(manager, interpreter.NewRegexParser(), zerolog.New(nil)).Handler()
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	handler := newTestHandler()

	if rec := do(t, handler, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestParseEndpoint(t *testing.T) {
	handler := newTestHandler()

	rec := do(t, handler, http.MethodPost, "/api/transfers/parse", `{"command":"send 10 usdc to @alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("parse = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		Parsed models.ParsedCommand `json:"parsed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Parsed.Amount != "10" || resp.Parsed.Recipient != "alice" {
		t.Errorf("parsed = %+v, want amount=10 recipient=alice", resp.Parsed)
	}
}

func TestErrorMapping(t *testing.T) {
	handler := newTestHandler()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
		kind   errs.Kind
	}{
		{"unparsable command", http.MethodPost, "/api/transfers/parse", `{"command":"hello"}`, http.StatusBadRequest, errs.Unparsable},
		{"malformed body", http.MethodPost, "/api/transfers/parse", `{`, http.StatusBadRequest, errs.Invalid},
		{"unknown transfer", http.MethodGet, "/api/transfers/nope", "", http.StatusNotFound, errs.NotFound},
		{"unknown claim", http.MethodGet, "/api/claims/nope", "", http.StatusNotFound, errs.NotFound},
		{"unknown wallet", http.MethodGet, "/api/wallets/handle/ghost", "", http.StatusNotFound, errs.NotFound},
		{"bad withdraw address", http.MethodPost, "/api/claims/withdraw", `{"handle":"bob","toAddress":"nope","withdrawAll":true}`, http.StatusBadRequest, errs.Invalid},
		{"empty wallet withdraw", http.MethodPost, "/api/claims/withdraw", `{"handle":"bob","toAddress":"0x95222290DD7278Aa3Ddd389Cc1E1d165CC4BAfe5","withdrawAll":true}`, http.StatusBadRequest, errs.InsufficientFunds},
		{"bad balance address", http.MethodGet, "/api/wallets/balance/nope", "", http.StatusBadRequest, errs.Invalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, handler, tt.method, tt.path, tt.body)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
			var resp struct {
				Kind string `json:"kind"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Kind != string(tt.kind) {
				t.Errorf("kind = %q, want %q", resp.Kind, tt.kind)
			}
		})
	}
}

func TestCreateWalletEndpoint(t *testing.T) {
	handler := newTestHandler()

	rec := do(t, handler, http.MethodPost, "/api/wallets/create", `{"handle":"@Bob"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create wallet = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		Handle  string `json:"handle"`
		Address string `json:"address"`
		IsNew   bool   `json:"isNew"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Handle != "bob" || resp.Address == "" || !resp.IsNew {
		t.Errorf("wallet = %+v, want handle=bob with address and isNew", resp)
	}

	if rec := do(t, handler, http.MethodPost, "/api/wallets/create", `{"handle":"has space"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid handle = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestEstimateEndpoint(t *testing.T) {
	handler := newTestHandler()

	rec := do(t, handler, http.MethodPost, "/api/transfers/estimate", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("estimate = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		GasEstimate models.FeeEstimate `json:"gasEstimate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.GasEstimate.GasLimit != "100000" {
		t.Errorf("gas limit = %q, want %q", resp.GasEstimate.GasLimit, "100000")
	}
}

func TestTokenAddressEndpoint(t *testing.T) {
	handler := newTestHandler()

	rec := do(t, handler, http.MethodGet, "/api/wallets/usdc-address", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("usdc-address = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		Address  string `json:"address"`
		Decimals int    `json:"decimals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Address == "" || resp.Decimals != 6 {
		t.Errorf("token info = %+v, want address and 6 decimals", resp)
	}
}

func TestPrepareEndpoint(t *testing.T) {
	handler := newTestHandler()

	rec := do(t, handler, http.MethodPost, "/api/transfers/prepare", `{"recipient":"@Bob","amount":"10"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("prepare = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		Transfer struct {
			ID         string `json:"id"`
			Recipient  string `json:"recipient"`
			ClaimToken string `json:"claimToken"`
		} `json:"transfer"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transfer.Recipient != "bob" {
		t.Errorf("recipient = %q, want %q", resp.Transfer.Recipient, "bob")
	}
	if resp.Transfer.ID == "" || resp.Transfer.ClaimToken == "" {
		t.Errorf("missing id or claim token: %+v", resp.Transfer)
	}
}
