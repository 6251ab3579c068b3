package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siasom1/gorrillazz-devnet/artifacts"
	"github.com/Siasom1/gorrillazz-devnet/consensus/producer"
	"github.com/Siasom1/gorrillazz-devnet/core/blockchain"
	"github.com/Siasom1/gorrillazz-devnet/core/rawdb"
	"github.com/Siasom1/gorrillazz-devnet/core/txpool"
	"github.com/Siasom1/gorrillazz-devnet/core/types"
	"github.com/Siasom1/gorrillazz-devnet/events"
	"github.com/Siasom1/gorrillazz-devnet/internal/testutil"
)

var startBalance = big.NewInt(1_000_000)

type testNode struct {
	chain     *blockchain.Blockchain
	pool      *txpool.TxPool
	bus       *events.EventBus
	scheduler *producer.Scheduler
	server    *Server
	http      *httptest.Server
}

func newTestNode(t *testing.T, loader ArtifactSource) *testNode {
	t.Helper()

	alloc := blockchain.GenesisAlloc{}
	for i := 0; i < 4; i++ {
		alloc[testutil.Addr(i)] = startBalance
	}
	chain, err := blockchain.NewBlockchain(
		blockchain.DefaultChainConfig(testutil.ChainID.Uint64(), alloc),
		rawdb.NewMemoryDatabase(), nil)
	require.NoError(t, err)

	bus := events.NewEventBus()
	pool := txpool.NewTxPool(txpool.DefaultConfig(), chain, bus, nil)
	builder := producer.NewBuilder(chain, pool, bus, 0, nil)
	// never started: blocks are only sealed through evm_mine
	scheduler := producer.NewScheduler(producer.IntervalPolicy(time.Hour), builder, pool.Admissions(), nil)
	t.Cleanup(scheduler.Stop)

	backend := Backend{
		Chain:    chain,
		Pool:     pool,
		Miner:    scheduler,
		Accounts: []common.Address{testutil.Addr(0), testutil.Addr(1)},
	}
	if loader != nil {
		backend.Artifacts = loader
	}

	server := NewServer(Config{Addr: "127.0.0.1:0"}, NewAPI(backend), bus, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testNode{
		chain:     chain,
		pool:      pool,
		bus:       bus,
		scheduler: scheduler,
		server:    server,
		http:      ts,
	}
}

type rpcResult struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	ID     interface{}     `json:"id"`
}

func (n *testNode) post(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(n.http.URL, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (n *testNode) call(t *testing.T, method string, params ...interface{}) rpcResult {
	t.Helper()
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	resp := n.post(t, string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out rpcResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// result calls method and decodes a successful result into v.
func (n *testNode) result(t *testing.T, v interface{}, method string, params ...interface{}) {
	t.Helper()
	out := n.call(t, method, params...)
	require.Nil(t, out.Error, "%s failed: %+v", method, out.Error)
	require.NoError(t, json.Unmarshal(out.Result, v))
}

func rawTx(t *testing.T, tx *types.Transaction) string {
	t.Helper()
	enc, err := tx.MarshalBinary()
	require.NoError(t, err)
	return hexutil.Encode(enc)
}

func TestChainInfo(t *testing.T) {
	n := newTestNode(t, nil)

	var s string
	n.result(t, &s, "eth_chainId")
	assert.Equal(t, "0x7a69", s)

	n.result(t, &s, "net_version")
	assert.Equal(t, "31337", s)

	n.result(t, &s, "web3_clientVersion")
	assert.Contains(t, s, "gorrillazz-devnet/")

	n.result(t, &s, "eth_blockNumber")
	assert.Equal(t, "0x0", s)

	n.result(t, &s, "eth_gasPrice")
	assert.Equal(t, "0x0", s)

	var accounts []common.Address
	n.result(t, &accounts, "eth_accounts")
	assert.Equal(t, []common.Address{testutil.Addr(0), testutil.Addr(1)}, accounts)

	n.result(t, &s, "web3_sha3", "0x68656c6c6f")
	assert.Equal(t, "0x1c8aff950685c2ed4bc3174f3472287b56d9517b9c948127319a09a7a36deac8", s)
}

func TestSendRawTransactionAndMine(t *testing.T) {
	n := newTestNode(t, nil)
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx := testutil.Transfer(t, testutil.Key(0), 0, to, 500)

	var hash common.Hash
	n.result(t, &hash, "eth_sendRawTransaction", rawTx(t, tx))
	assert.Equal(t, tx.Hash(), hash)

	var pooled map[string]interface{}
	n.result(t, &pooled, "eth_getTransactionByHash", hash)
	assert.Nil(t, pooled["blockHash"])
	assert.Equal(t, strings.ToLower(testutil.Addr(0).Hex()), strings.ToLower(pooled["from"].(string)))

	var status map[string]string
	n.result(t, &status, "txpool_status")
	assert.Equal(t, map[string]string{"pending": "0x1", "queued": "0x0"}, status)

	var nonce string
	n.result(t, &nonce, "eth_getTransactionCount", testutil.Addr(0), "pending")
	assert.Equal(t, "0x1", nonce)
	n.result(t, &nonce, "eth_getTransactionCount", testutil.Addr(0), "latest")
	assert.Equal(t, "0x0", nonce)

	out := n.call(t, "eth_getTransactionReceipt", hash)
	require.Nil(t, out.Error)
	assert.Equal(t, "null", string(out.Result))

	var mined string
	n.result(t, &mined, "evm_mine")
	assert.Equal(t, "0x0", mined)

	var number string
	n.result(t, &number, "eth_blockNumber")
	assert.Equal(t, "0x1", number)

	var receipt types.Receipt
	n.result(t, &receipt, "eth_getTransactionReceipt", hash)
	assert.Equal(t, hexutil.Uint64(types.ReceiptStatusSuccessful), receipt.Status)
	assert.Equal(t, hexutil.Uint64(1), receipt.BlockNumber)

	var balance hexutil.Big
	n.result(t, &balance, "eth_getBalance", to, "latest")
	assert.Equal(t, int64(500), balance.ToInt().Int64())

	var block struct {
		Hash         common.Hash       `json:"hash"`
		Number       hexutil.Uint64    `json:"number"`
		Transactions []json.RawMessage `json:"transactions"`
	}
	n.result(t, &block, "eth_getBlockByNumber", "0x1", true)
	assert.Equal(t, hexutil.Uint64(1), block.Number)
	require.Len(t, block.Transactions, 1)

	var hashes struct {
		Transactions []common.Hash `json:"transactions"`
	}
	n.result(t, &hashes, "eth_getBlockByHash", block.Hash, false)
	assert.Equal(t, []common.Hash{hash}, hashes.Transactions)

	var included map[string]interface{}
	n.result(t, &included, "eth_getTransactionByHash", hash)
	assert.Equal(t, block.Hash.Hex(), included["blockHash"])
	assert.Equal(t, "0x1", included["blockNumber"])
	assert.Equal(t, "0x0", included["transactionIndex"])

	out = n.call(t, "eth_getBlockByNumber", "0x5", false)
	require.Nil(t, out.Error)
	assert.Equal(t, "null", string(out.Result))
}

func TestSendRawTransactionRejected(t *testing.T) {
	n := newTestNode(t, nil)
	tx := testutil.Transfer(t, testutil.Key(0), 0, testutil.Addr(1), 1)

	n.call(t, "eth_sendRawTransaction", rawTx(t, tx))
	dup := n.call(t, "eth_sendRawTransaction", rawTx(t, tx))
	require.NotNil(t, dup.Error)
	assert.Equal(t, ErrCodeServer, dup.Error.Code)
	assert.Contains(t, dup.Error.Message, txpool.ErrAlreadyKnown.Error())

	_, err := n.scheduler.Mine(context.Background())
	require.NoError(t, err)

	stale := testutil.Transfer(t, testutil.Key(0), 0, testutil.Addr(2), 1)
	out := n.call(t, "eth_sendRawTransaction", rawTx(t, stale))
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeServer, out.Error.Code)
	assert.Contains(t, out.Error.Message, txpool.ErrInvalidNonce.Error())

	broke := testutil.Transfer(t, testutil.Key(1), 0, testutil.Addr(2), 2_000_000)
	out = n.call(t, "eth_sendRawTransaction", rawTx(t, broke))
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeServer, out.Error.Code)
	assert.Contains(t, out.Error.Message, txpool.ErrInsufficientFunds.Error())

	out = n.call(t, "eth_sendRawTransaction", "0xdeadbeef")
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeServer, out.Error.Code)

	out = n.call(t, "eth_sendRawTransaction", "not hex")
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeInvalidParams, out.Error.Code)

	out = n.call(t, "eth_sendRawTransaction")
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeInvalidParams, out.Error.Code)

	// the chain is untouched by rejected submissions
	assert.Equal(t, uint64(1), n.chain.CurrentBlock().Number())
}

func TestStateQueriesAtBlock(t *testing.T) {
	n := newTestNode(t, nil)

	var balance hexutil.Big
	n.result(t, &balance, "eth_getBalance", testutil.Addr(0), "earliest")
	assert.Equal(t, startBalance, balance.ToInt())

	_, err := n.scheduler.Mine(context.Background())
	require.NoError(t, err)

	n.result(t, &balance, "eth_getBalance", testutil.Addr(0), "0x1")
	assert.Equal(t, startBalance, balance.ToInt())

	n.result(t, &balance, "eth_getBalance", testutil.Addr(0))
	assert.Equal(t, startBalance, balance.ToInt())

	out := n.call(t, "eth_getBalance", testutil.Addr(0), "0x0")
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeServer, out.Error.Code)

	out = n.call(t, "eth_getBalance", testutil.Addr(0), "0x9")
	require.NotNil(t, out.Error)
	assert.Equal(t, "header not found", out.Error.Message)

	out = n.call(t, "eth_getBalance", "0x1234", "latest")
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeInvalidParams, out.Error.Code)
}

func TestGetCode(t *testing.T) {
	n := newTestNode(t, nil)
	code := []byte{0x60, 0x00, 0x60, 0x00}
	tx := testutil.Deploy(t, testutil.Key(0), 0, code)

	n.call(t, "eth_sendRawTransaction", rawTx(t, tx))
	n.call(t, "evm_mine")

	var receipt types.Receipt
	n.result(t, &receipt, "eth_getTransactionReceipt", tx.Hash())
	require.NotNil(t, receipt.ContractAddress)

	var got hexutil.Bytes
	n.result(t, &got, "eth_getCode", *receipt.ContractAddress, "latest")
	assert.Equal(t, hexutil.Bytes(code), got)

	n.result(t, &got, "eth_getCode", testutil.Addr(3))
	assert.Empty(t, got)
}

func TestDropTransaction(t *testing.T) {
	n := newTestNode(t, nil)
	tx := testutil.Transfer(t, testutil.Key(1), 0, testutil.Addr(2), 1)
	n.call(t, "eth_sendRawTransaction", rawTx(t, tx))

	var dropped bool
	n.result(t, &dropped, "dev_dropTransaction", tx.Hash())
	assert.True(t, dropped)
	n.result(t, &dropped, "dev_dropTransaction", tx.Hash())
	assert.False(t, dropped)

	n.call(t, "evm_mine")
	assert.Empty(t, n.chain.CurrentBlock().Transactions)
}

func TestProtocolErrors(t *testing.T) {
	n := newTestNode(t, nil)

	out := n.call(t, "eth_nope")
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeMethodNotFound, out.Error.Code)

	var parsed rpcResult
	require.NoError(t, json.NewDecoder(n.post(t, `{"jsonrpc":`).Body).Decode(&parsed))
	require.NotNil(t, parsed.Error)
	assert.Equal(t, ErrCodeParse, parsed.Error.Code)

	require.NoError(t, json.NewDecoder(n.post(t, `{"jsonrpc":"1.0","id":7,"method":"eth_chainId"}`).Body).Decode(&parsed))
	require.NotNil(t, parsed.Error)
	assert.Equal(t, ErrCodeInvalidRequest, parsed.Error.Code)
	assert.Equal(t, float64(7), parsed.ID)

	require.NoError(t, json.NewDecoder(n.post(t, `[]`).Body).Decode(&parsed))
	require.NotNil(t, parsed.Error)
	assert.Equal(t, ErrCodeInvalidRequest, parsed.Error.Code)

	resp, err := http.Get(n.http.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestBatch(t *testing.T) {
	n := newTestNode(t, nil)

	resp := n.post(t, `[
		{"jsonrpc":"2.0","id":1,"method":"eth_chainId"},
		{"jsonrpc":"2.0","id":2,"method":"eth_blockNumber"},
		{"jsonrpc":"2.0","id":3,"method":"eth_missing"},
		42
	]`)
	var out []rpcResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 4)

	assert.Equal(t, `"0x7a69"`, string(out[0].Result))
	assert.Equal(t, `"0x0"`, string(out[1].Result))
	require.NotNil(t, out[2].Error)
	assert.Equal(t, ErrCodeMethodNotFound, out[2].Error.Code)
	require.NotNil(t, out[3].Error)
	assert.Equal(t, ErrCodeInvalidRequest, out[3].Error.Code)
}

func TestNotificationsGetNoAnswer(t *testing.T) {
	n := newTestNode(t, nil)

	resp := n.post(t, `{"jsonrpc":"2.0","method":"evm_mine"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
	// still executed
	assert.Equal(t, uint64(1), n.chain.CurrentBlock().Number())

	resp = n.post(t, `{"jsonrpc":"2.0","method":"eth_missing"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = n.post(t, `[
		{"jsonrpc":"2.0","method":"eth_chainId"},
		{"jsonrpc":"2.0","id":null,"method":"eth_blockNumber"},
		{"jsonrpc":"2.0","id":2,"method":"eth_chainId"}
	]`)
	var out []rpcResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.Nil(t, out[0].ID)
	assert.Equal(t, `"0x1"`, string(out[0].Result))
	assert.Equal(t, float64(2), out[1].ID)

	resp = n.post(t, `[{"jsonrpc":"2.0","method":"eth_chainId"}]`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRequestTooLarge(t *testing.T) {
	n := newTestNode(t, nil)

	oversized := `{"jsonrpc":"2.0","id":1,"method":"eth_chainId","params":["` + strings.Repeat("a", maxBodySize) + `"]}`
	resp := n.post(t, oversized)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	var out rpcResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeInvalidRequest, out.Error.Code)
	assert.Equal(t, "request too large", out.Error.Message)
}

func TestArtifactMethods(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "contracts", "Counter.sol")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Counter.json"), []byte(`{
		"contractName": "Counter",
		"sourceName": "contracts/Counter.sol",
		"abi": [],
		"bytecode": "0x600a600c",
		"deployedBytecode": "0x600a"
	}`), 0o644))

	loader, err := artifacts.NewLoader(root, "0.8.24")
	require.NoError(t, err)
	n := newTestNode(t, loader)

	var version string
	n.result(t, &version, "dev_compilerVersion")
	assert.Equal(t, "0.8.24", version)

	var a struct {
		ContractName string        `json:"contractName"`
		Bytecode     hexutil.Bytes `json:"bytecode"`
	}
	n.result(t, &a, "dev_artifact", "Counter.sol:Counter")
	assert.Equal(t, "Counter", a.ContractName)
	assert.Equal(t, hexutil.Bytes{0x60, 0x0a, 0x60, 0x0c}, a.Bytecode)

	out := n.call(t, "dev_artifact", "Missing")
	require.NotNil(t, out.Error)
	assert.Contains(t, out.Error.Message, artifacts.ErrNotFound.Error())

	none := newTestNode(t, nil)
	out = none.call(t, "dev_compilerVersion")
	require.NotNil(t, out.Error)
}

func TestHealthAndMetrics(t *testing.T) {
	n := newTestNode(t, nil)
	n.call(t, "eth_chainId")

	resp, err := http.Get(n.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(0), health["head"])

	resp, err = http.Get(n.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(body, []byte("devnet_rpc_calls_total")))
}

func TestCORSPreflight(t *testing.T) {
	n := newTestNode(t, nil)

	req, err := http.NewRequest(http.MethodOptions, n.http.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServerStartStop(t *testing.T) {
	n := newTestNode(t, nil)
	s := n.server

	require.NoError(t, s.Start())
	require.Error(t, s.Start())
	require.NotNil(t, s.Addr())

	resp, err := http.Post("http://"+s.Addr().String(), "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"eth_chainId"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

// --------------------------------------------------------
// Websocket
// --------------------------------------------------------

func dialWS(t *testing.T, n *testNode) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(n.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wsCall(t *testing.T, conn *websocket.Conn, id int, method string, params ...interface{}) rpcResult {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0", "id": id, "method": method, "params": params,
	}))
	var out rpcResult
	readWS(t, conn, &out)
	return out
}

func readWS(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

type notification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

func TestWebSocketCalls(t *testing.T) {
	n := newTestNode(t, nil)
	conn := dialWS(t, n)

	out := wsCall(t, conn, 1, "eth_chainId")
	require.Nil(t, out.Error)
	assert.Equal(t, `"0x7a69"`, string(out.Result))

	out = wsCall(t, conn, 2, "eth_subscribe", "logs")
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeInvalidParams, out.Error.Code)
}

func TestWebSocketNewHeads(t *testing.T) {
	n := newTestNode(t, nil)
	conn := dialWS(t, n)

	out := wsCall(t, conn, 1, "eth_subscribe", "newHeads")
	require.Nil(t, out.Error)
	var subID string
	require.NoError(t, json.Unmarshal(out.Result, &subID))
	assert.True(t, strings.HasPrefix(subID, "0x"))

	block, err := n.scheduler.Mine(context.Background())
	require.NoError(t, err)

	var note notification
	readWS(t, conn, &note)
	assert.Equal(t, "eth_subscription", note.Method)
	assert.Equal(t, subID, note.Params.Subscription)

	var head struct {
		Hash   common.Hash    `json:"hash"`
		Number hexutil.Uint64 `json:"number"`
	}
	require.NoError(t, json.Unmarshal(note.Params.Result, &head))
	assert.Equal(t, block.Hash(), head.Hash)
	assert.Equal(t, hexutil.Uint64(1), head.Number)

	out = wsCall(t, conn, 2, "eth_unsubscribe", subID)
	require.Nil(t, out.Error)
	assert.Equal(t, "true", string(out.Result))

	out = wsCall(t, conn, 3, "eth_unsubscribe", subID)
	assert.Equal(t, "false", string(out.Result))
}

func TestWebSocketPendingTransactions(t *testing.T) {
	n := newTestNode(t, nil)
	conn := dialWS(t, n)

	out := wsCall(t, conn, 1, "eth_subscribe", "newPendingTransactions")
	require.Nil(t, out.Error)
	var subID string
	require.NoError(t, json.Unmarshal(out.Result, &subID))

	tx := testutil.Transfer(t, testutil.Key(2), 0, testutil.Addr(3), 1)
	_, err := n.pool.Submit(tx)
	require.NoError(t, err)

	var note notification
	readWS(t, conn, &note)
	assert.Equal(t, subID, note.Params.Subscription)
	assert.Equal(t, `"`+tx.Hash().Hex()+`"`, string(note.Params.Result))
}

func TestWebSocketCloseReleasesSubscriptions(t *testing.T) {
	n := newTestNode(t, nil)
	conn := dialWS(t, n)

	out := wsCall(t, conn, 1, "eth_subscribe", "newHeads")
	require.Nil(t, out.Error)
	blocks, _ := n.bus.Subscribers()
	assert.Equal(t, 1, blocks)

	conn.Close()
	require.Eventually(t, func() bool {
		blocks, _ := n.bus.Subscribers()
		return blocks == 0 && n.server.hub.Clients() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBlockNumberParam(t *testing.T) {
	tests := []struct {
		in      string
		want    BlockNumber
		wantErr bool
	}{
		{in: `"latest"`, want: LatestBlockNumber},
		{in: `"safe"`, want: LatestBlockNumber},
		{in: `"pending"`, want: PendingBlockNumber},
		{in: `"earliest"`, want: EarliestBlockNumber},
		{in: `"0x1f"`, want: 31},
		{in: `"0x"`, wantErr: true},
		{in: `"12"`, wantErr: true},
		{in: `"0xffffffffffffffff"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var bn BlockNumber
			err := json.Unmarshal([]byte(tt.in), &bn)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, bn)
		})
	}
}
