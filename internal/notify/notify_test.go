package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/config"
	"fieldline/internal/domain"
)

func TestNormalizeRecipient(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"0712345678", "+254712345678"},
		{" 0712345678 ", "+254712345678"},
		{"254712345678", "+254712345678"},
		{"+254712345678", "+254712345678"},
		{"+15551234567", "+15551234567"},
	}
	for _, tc := range cases {
		got, err := NormalizeRecipient(tc.in, "254")
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
	for _, bad := range []string{"", "0", "712345678", "+25471x", "07-12-34", "254"} {
		_, err := NormalizeRecipient(bad, "254")
		assert.True(t, errors.Is(err, domain.ErrValidation), "expected validation error for %q", bad)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSMSGatewayDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "key", r.Header.Get("apiKey"))
		assert.Equal(t, "sandbox", r.PostForm.Get("username"))
		assert.Equal(t, "+254712345678", r.PostForm.Get("to"))
		assert.Equal(t, "FIELD", r.PostForm.Get("from"))
		assert.Equal(t, "hello", r.PostForm.Get("message"))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"SMSMessageData":{"Message":"Sent to 1/1","Recipients":[{"number":"+254712345678","status":"Success","statusCode":101,"messageId":"ATXid_1"}]}}`)
	}))
	defer srv.Close()

	g := NewSMSGateway(config.SMSConfig{Endpoint: srv.URL, Username: "sandbox", APIKey: "key", SenderID: "FIELD", CountryCode: "254"}, quietLogger())
	res, err := g.Notify(context.Background(), "0712345678", "hello")
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, "ATXid_1", res.ProviderRef)
	assert.Equal(t, "+254712345678", res.Recipient)
}

func TestSMSGatewayRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"SMSMessageData":{"Message":"Sent to 0/1","Recipients":[{"number":"+254712345678","status":"InvalidPhoneNumber","statusCode":403}]}}`)
	}))
	defer srv.Close()

	g := NewSMSGateway(config.SMSConfig{Endpoint: srv.URL, CountryCode: "254"}, quietLogger())
	res, err := g.Notify(context.Background(), "0712345678", "hello")
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.Equal(t, "InvalidPhoneNumber", res.Status)
}

func TestSMSGatewayHTTPErrorIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewSMSGateway(config.SMSConfig{Endpoint: srv.URL, CountryCode: "254"}, quietLogger())
	res, err := g.Notify(context.Background(), "+254712345678", "hello")
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.Equal(t, "HTTP 401", res.Status)
	assert.Equal(t, "bad key", res.Raw)
}

func TestSMSGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	g := NewSMSGateway(config.SMSConfig{Endpoint: srv.URL, CountryCode: "254"}, quietLogger())
	g.Client = &http.Client{Timeout: 50 * time.Millisecond}
	res, err := g.Notify(context.Background(), "+254712345678", "hello")
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.Equal(t, "failed", res.Status)
}

func TestSMSGatewayInvalidRecipient(t *testing.T) {
	g := NewSMSGateway(config.SMSConfig{Endpoint: "http://127.0.0.1:1", CountryCode: "254"}, quietLogger())
	_, err := g.Notify(context.Background(), "not-a-number", "hello")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestLogNotifierDelivers(t *testing.T) {
	res, err := LogNotifier{CountryCode: "254", Logger: quietLogger()}.Notify(context.Background(), "0712345678", "hi")
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, "+254712345678", res.Recipient)
}
