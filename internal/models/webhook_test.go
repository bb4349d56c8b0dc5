package models

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestParseWebhookPayload(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bson.M
		wantErr     bool
	}{
		{"json object", "application/json", `{"event":"user.signup","user":{"id":"12345"}}`,
			bson.M{"event": "user.signup", "user": map[string]interface{}{"id": "12345"}}, false},
		{"json with charset", "application/json; charset=utf-8", `{"a":1}`, bson.M{"a": float64(1)}, false},
		{"json array", "application/json", `[1,2]`, bson.M{"value": []interface{}{float64(1), float64(2)}}, false},
		{"bad json", "application/json", `{bad`, nil, true},
		{"form", "application/x-www-form-urlencoded", `a=1&b=2&b=3`, bson.M{"a": "1", "b": []string{"2", "3"}}, false},
		{"plain text", "text/plain", `hello`, bson.M{"raw": "hello"}, false},
		{"untyped json", "", `{"x":"y"}`, bson.M{"x": "y"}, false},
		{"empty", "application/json", ``, bson.M{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWebhookPayload(tt.contentType, []byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValuesToDocument(t *testing.T) {
	doc := ValuesToDocument(url.Values{"one": {"1"}, "many": {"a", "b"}})
	assert.Equal(t, "1", doc["one"])
	assert.Equal(t, []string{"a", "b"}, doc["many"])
}
