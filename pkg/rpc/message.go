package rpc

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

const jsonrpcVersion = "2.0"

// request JSON-RPC 2.0 请求
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// response 服务端返回帧；id 缺失的帧是通知（notification）
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result"`
	Error   *wireError      `json:"error"`
}

type wireError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func encodeRequest(id uint64, method string, params any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	return json.Marshal(request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	})
}

// parseID accepts both numeric and string ids; ok is false for null/missing ids.
func parseID(raw json.RawMessage) (id uint64, ok bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false, err
		}
	}
	id, err = strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
