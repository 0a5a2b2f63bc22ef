package jsonrpc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Request(t *testing.T) {
	v, err := Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.NoError(t, err)

	req, ok := v.(Request)
	require.True(t, ok)
	assert.Equal(t, "tools/list", req.Method)
	assert.Equal(t, float64(1), req.ID.Value())
}

func TestParse_Notification(t *testing.T) {
	v, err := Parse([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)

	_, ok := v.(Notification)
	assert.True(t, ok)
}

func TestParse_NullID(t *testing.T) {
	v, err := Parse([]byte(`{"jsonrpc":"2.0","id":null,"method":"tools/list"}`))
	require.NoError(t, err)

	req, ok := v.(Request)
	require.True(t, ok)
	assert.True(t, req.ID.IsSet())
	assert.Nil(t, req.ID.Value())
}

func TestParse_StringID(t *testing.T) {
	v, err := Parse([]byte(`{"jsonrpc":"2.0","id":"abc","method":"tools/list"}`))
	require.NoError(t, err)

	req := v.(Request)
	assert.Equal(t, "abc", req.ID.Value())
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeParseError, pe.Code)
}

func TestParse_NotAnObject(t *testing.T) {
	_, err := Parse([]byte(`[1,2,3]`))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeInvalidRequest, pe.Code)
}

func TestParse_WrongVersion(t *testing.T) {
	_, err := Parse([]byte(`{"jsonrpc":"1.0","id":1,"method":"x"}`))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeInvalidRequest, pe.Code)
}

func TestParse_EmptyMethod(t *testing.T) {
	_, err := Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":""}`))
	require.Error(t, err)
}

func TestParse_InvalidIDKind(t *testing.T) {
	_, err := Parse([]byte(`{"jsonrpc":"2.0","id":{"nested":true},"method":"x"}`))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeInvalidRequest, pe.Code)
}

func TestParse_OversizedMessageRejected(t *testing.T) {
	huge := `{"jsonrpc":"2.0","id":1,"method":"x","params":{"data":"` + strings.Repeat("a", MaxMessageBytes+1) + `"}}`
	_, err := Parse([]byte(huge))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeInvalidRequest, pe.Code)
}

func TestResponse_MarshalJSON(t *testing.T) {
	resp := Response{ID: NewID(float64(1)), Result: map[string]any{"ok": true}}
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`, string(b))
}

func TestErrorResponse_MarshalJSON(t *testing.T) {
	resp := NewErrorResponse(NullID(), CodeMethodNotFound, "method not found")
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32601,"message":"method not found"}}`, string(b))
}
