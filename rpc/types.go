package rpc

import "encoding/json"

const jsonrpcVersion = "2.0"

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports a request without an id. It gets no answer.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// answers reports whether resp is written back for req. A notification is
// answered only when it is not even a well-formed request.
func answers(req *Request, resp Response) bool {
	if !req.IsNotification() {
		return true
	}
	return resp.Error != nil && resp.Error.Code == ErrCodeInvalidRequest
}

type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// MarshalJSON drops result on errors; a successful null result is kept.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string      `json:"jsonrpc"`
			Error   *Error      `json:"error"`
			ID      interface{} `json:"id"`
		}{r.JSONRPC, r.Error, r.ID})
	}
	type plain Response
	return json.Marshal(plain(r))
}

type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Standard JSON-RPC 2.0 error codes
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// ErrCodeServer is used for rejected submissions and failed mining, the
// code geth and Hardhat return for them.
const ErrCodeServer = -32000

func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func NewErrorWithData(code int, message string, data interface{}) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

func ErrParseError(message string) *Error {
	return NewError(ErrCodeParse, message)
}

func ErrInvalidRequest(message string) *Error {
	return NewError(ErrCodeInvalidRequest, message)
}

func ErrMethodNotFound(method string) *Error {
	return NewErrorWithData(ErrCodeMethodNotFound, "method not found", method)
}

func ErrInvalidParams(message string) *Error {
	return NewError(ErrCodeInvalidParams, message)
}

func ErrInternal(message string) *Error {
	return NewError(ErrCodeInternal, message)
}

func ErrServer(err error) *Error {
	return NewError(ErrCodeServer, err.Error())
}
