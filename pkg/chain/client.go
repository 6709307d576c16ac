package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"context"
)

// listingsSelector is the 4-byte selector of listings(bytes32).
const listingsSelector = "0x7bfbae21"

// priceScale converts the contract's micro-USD price units to USD.
const priceScale = 1e6

// RPCClient reads listing state through a JSON-RPC eth_call against the
// marketplace contract.
type RPCClient struct {
	rpcURL          string
	contractAddress string
	httpClient      *http.Client
}

// NewRPCClient creates a chain reader for the given endpoint and contract.
func NewRPCClient(rpcURL, contractAddress string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPCClient{
		rpcURL:          rpcURL,
		contractAddress: contractAddress,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Listing performs the read-only view call for a listing id.
func (c *RPCClient) Listing(ctx context.Context, listingID string) (ListingState, error) {
	data := listingsSelector + encodeBytes32(listingID)

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_call",
		Params: []interface{}{
			map[string]string{
				"to":   c.contractAddress,
				"data": data,
			},
			"latest",
		},
		ID: 1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return ListingState{}, fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return ListingState{}, fmt.Errorf("failed to create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ListingState{}, fmt.Errorf("rpc call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return ListingState{}, fmt.Errorf("rpc error (status %d): %s", resp.StatusCode, string(body))
	}

	var result rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ListingState{}, fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if result.Error != nil {
		return ListingState{}, fmt.Errorf("rpc error %d: %s", result.Error.Code, result.Error.Message)
	}

	return decodeListingState(result.Result)
}

// decodeListingState unpacks the six 32-byte words returned by the view:
// seller, tokenId, amount, pricePerUnit, paymentToken, expiry.
func decodeListingState(hexData string) (ListingState, error) {
	data := strings.TrimPrefix(hexData, "0x")
	if len(data) < 6*64 {
		return ListingState{}, fmt.Errorf("short eth_call result: %d hex chars", len(data))
	}

	word := func(i int) string { return data[i*64 : (i+1)*64] }

	amount, ok := new(big.Int).SetString(word(2), 16)
	if !ok {
		return ListingState{}, fmt.Errorf("invalid amount word: %s", word(2))
	}
	price, ok := new(big.Int).SetString(word(3), 16)
	if !ok {
		return ListingState{}, fmt.Errorf("invalid price word: %s", word(3))
	}
	expiry, ok := new(big.Int).SetString(word(5), 16)
	if !ok {
		return ListingState{}, fmt.Errorf("invalid expiry word: %s", word(5))
	}

	return ListingState{
		Seller:       "0x" + word(0)[24:],
		TokenID:      "0x" + word(1),
		Amount:       amount.Uint64(),
		PricePerUnit: float64(price.Uint64()) / priceScale,
		PaymentToken: "0x" + word(4)[24:],
		Expiry:       expiry.Int64(),
	}, nil
}

// encodeBytes32 right-pads an id into a 32-byte hex argument. Ids that are
// already 0x-prefixed hex are used as-is.
func encodeBytes32(id string) string {
	if strings.HasPrefix(id, "0x") && len(id) == 66 {
		return id[2:]
	}

	raw := []byte(id)
	if len(raw) > 32 {
		raw = raw[:32]
	}

	padded := make([]byte, 32)
	copy(padded, raw)
	return fmt.Sprintf("%x", padded)
}
