package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

func testRetry() RetryPolicy {
	return RetryPolicy{Timeout: 2 * time.Second, MaxRetries: 1, Backoff: time.Millisecond}
}

func TestGenericSMSA_Send(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+971501234567", r.PostForm.Get("To"))
		assert.Equal(t, "OUD", r.PostForm.Get("From"))
		assert.Equal(t, "Happy Birthday Ahmed!", r.PostForm.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"sid":"SM1","status":"queued","num_segments":"1","price":"-0.0075","error_code":null}`)
	}))
	defer srv.Close()

	a := &GenericSMSA{BaseURL: srv.URL, AccountSID: "AC123", APIKey: "key", APISecret: "secret", From: "OUD", Client: srv.Client(), Retry: testRetry()}
	resp, err := a.Send(context.Background(), &Message{To: "+971501234567", Body: "Happy Birthday Ahmed!"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "SM1", resp.ProviderMessageID)
	assert.Equal(t, 1, resp.Segments)
	assert.InDelta(t, 0.0075, resp.Cost, 1e-9)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenericSMSA_RejectionIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`)
	}))
	defer srv.Close()

	a := &GenericSMSA{BaseURL: srv.URL, AccountSID: "AC1", Client: srv.Client(), Retry: testRetry()}
	_, err := a.Send(context.Background(), &Message{To: "+971501234567", Body: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.KindRejection, appErrors.KindOf(err))
	assert.Contains(t, err.Error(), "21211 Invalid 'To' Phone Number")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenericSMSA_ServerErrorRetriedOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"sid":"SM2","status":"queued","num_segments":"2"}`)
	}))
	defer srv.Close()

	a := &GenericSMSA{BaseURL: srv.URL, AccountSID: "AC1", CostPerSegment: 0.01, Client: srv.Client(), Retry: testRetry()}
	resp, err := a.Send(context.Background(), &Message{To: "+971501234567", Body: "x"})
	require.NoError(t, err)
	assert.Equal(t, "SM2", resp.ProviderMessageID)
	assert.InDelta(t, 0.02, resp.Cost, 1e-9)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenericSMSA_PersistentOutageGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := &GenericSMSA{BaseURL: srv.URL, AccountSID: "AC1", Client: srv.Client(), Retry: testRetry()}
	_, err := a.Send(context.Background(), &Message{To: "+971501234567", Body: "x"})
	assert.True(t, appErrors.IsRetryable(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenericSMSA_QueryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages/SM9.json", r.URL.Path)
		io.WriteString(w, `{"sid":"SM9","status":"delivered"}`)
	}))
	defer srv.Close()

	a := &GenericSMSA{BaseURL: srv.URL, AccountSID: "AC1", Client: srv.Client(), Retry: testRetry()}
	st, err := a.QueryStatus(context.Background(), "SM9")
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryDelivered, st)
}

func TestGenericSMSAStatus(t *testing.T) {
	tests := map[string]model.DeliveryStatus{
		"accepted":    model.DeliveryQueued,
		"sending":     model.DeliveryQueued,
		"sent":        model.DeliverySent,
		"read":        model.DeliveryDelivered,
		"undelivered": model.DeliveryFailed,
		"canceled":    model.DeliveryFailed,
		"mystery":     model.DeliveryQueued,
	}
	for native, want := range tests {
		assert.Equal(t, want, GenericSMSAStatus(native), native)
	}
}

func TestGenericSMSB_SendUnicode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sms/json", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "k", r.PostForm.Get("api_key"))
		assert.Equal(t, "s", r.PostForm.Get("api_secret"))
		assert.Equal(t, "971501234567", r.PostForm.Get("to"))
		assert.Equal(t, "unicode", r.PostForm.Get("type"))
		assert.Equal(t, "exec-1", r.PostForm.Get("client-ref"))
		io.WriteString(w, `{"message-count":"2","messages":[
			{"message-id":"B1","status":"0","message-price":"0.02"},
			{"message-id":"B2","status":"0","message-price":"0.02"}]}`)
	}))
	defer srv.Close()

	b := &GenericSMSB{BaseURL: srv.URL, APIKey: "k", APISecret: "s", Client: srv.Client(), Retry: testRetry()}
	resp, err := b.Send(context.Background(), &Message{To: "+971501234567", Body: "مرحبا", Language: "ar", Reference: "exec-1"})
	require.NoError(t, err)
	assert.Equal(t, "B1", resp.ProviderMessageID)
	assert.Equal(t, 2, resp.Segments)
	assert.InDelta(t, 0.04, resp.Cost, 1e-9)
}

func TestGenericSMSB_ThrottledThenRejected(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			io.WriteString(w, `{"message-count":"1","messages":[{"status":"1","error-text":"Throttled"}]}`)
			return
		}
		io.WriteString(w, `{"message-count":"1","messages":[{"status":"6","error-text":"Unroutable message"}]}`)
	}))
	defer srv.Close()

	b := &GenericSMSB{BaseURL: srv.URL, Client: srv.Client(), Retry: testRetry()}
	resp, err := b.Send(context.Background(), &Message{To: "+971501234567", Body: "hi"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "status 6: Unroutable message", resp.Error)
	assert.Zero(t, resp.Segments)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenericSMSB_PartialMultipartNamesAcceptedParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message-count":"3","messages":[
			{"message-id":"B1","status":"0","message-price":"0.02"},
			{"message-id":"B2","status":"0","message-price":"0.02"},
			{"status":"4","error-text":"Invalid credentials"}
		]}`)
	}))
	defer srv.Close()

	b := &GenericSMSB{BaseURL: srv.URL, Client: srv.Client(), Retry: testRetry()}
	resp, err := b.Send(context.Background(), &Message{To: "+971501234567", Body: "long message"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "status 4: Invalid credentials (2 of 3 parts accepted: B1,B2; cost 0.04000)", resp.Error)
	assert.Equal(t, 2, resp.Segments)
	assert.InDelta(t, 0.04, resp.Cost, 1e-9)
}

func TestGenericSMSB_QueryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/message", r.URL.Path)
		assert.Equal(t, "B1", r.URL.Query().Get("id"))
		io.WriteString(w, `{"message-id":"B1","final-status":"DELIVRD"}`)
	}))
	defer srv.Close()

	b := &GenericSMSB{BaseURL: srv.URL, Client: srv.Client(), Retry: testRetry()}
	st, err := b.QueryStatus(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryDelivered, st)
	assert.Equal(t, model.DeliveryFailed, GenericSMSBStatus("REJECTD"))
	assert.Equal(t, model.DeliveryQueued, GenericSMSBStatus("UNKNOWN"))
}

func TestRegional_SendArabicAsUCS2(t *testing.T) {
	var got regionalRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sms/send", r.URL.Path)
		assert.Equal(t, "reg-key", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"status":"success","message_id":"R1"}`)
	}))
	defer srv.Close()

	reg := &Regional{BaseURL: srv.URL, APIKey: "reg-key", SenderID: "OUDCRM", CostPerSegment: 0.05, Client: srv.Client(), Retry: testRetry()}
	resp, err := reg.Send(context.Background(), &Message{To: "+971501234567", Body: "مرحبا", Language: "ar"})
	require.NoError(t, err)

	assert.Equal(t, 8, got.Coding)
	assert.Equal(t, "06450631062D06280627", got.Message)
	assert.Equal(t, "971501234567", got.To)
	assert.Equal(t, "OUDCRM", got.SenderID)
	assert.Equal(t, "R1", resp.ProviderMessageID)
	assert.Equal(t, 1, resp.Segments)
	assert.InDelta(t, 0.05, resp.Cost, 1e-9)
}

func TestRegional_SendEnglishAsGSM7(t *testing.T) {
	var got regionalRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"status":"success","message_id":"R2"}`)
	}))
	defer srv.Close()

	reg := &Regional{BaseURL: srv.URL, Client: srv.Client(), Retry: testRetry()}
	_, err := reg.Send(context.Background(), &Message{To: "+971501234567", Body: "Happy Birthday", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Coding)
	assert.Equal(t, "Happy Birthday", got.Message)

	st, err := reg.QueryStatus(context.Background(), "R2")
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySent, st)
}

func TestRegional_ValidateNumber(t *testing.T) {
	reg := &Regional{}
	assert.True(t, reg.ValidateNumber("+971501234567"))
	assert.True(t, reg.ValidateNumber("+971581234567"))
	assert.False(t, reg.ValidateNumber("+971511234567"))
	assert.False(t, reg.ValidateNumber("+97142345678"))
	assert.False(t, reg.ValidateNumber("+966501234567"))
}

func TestWhatsApp_SendText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/PN1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.1"}]}`)
	}))
	defer srv.Close()

	wa := &WhatsApp{BaseURL: srv.URL, APIVersion: "v19.0", PhoneNumberID: "PN1", AccessToken: "tok", Client: srv.Client(), Retry: testRetry()}
	resp, err := wa.Send(context.Background(), &Message{To: "+971501234567", Body: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", resp.ProviderMessageID)
	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "971501234567", got["to"])
	assert.Equal(t, "text", got["type"])
	assert.Equal(t, "Hello", got["text"].(map[string]any)["body"])
}

func TestWhatsApp_SendTemplate(t *testing.T) {
	var got waMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"messages":[{"id":"wamid.2"}]}`)
	}))
	defer srv.Close()

	wa := &WhatsApp{BaseURL: srv.URL, APIVersion: "v19.0", PhoneNumberID: "PN1", Client: srv.Client(), Retry: testRetry()}
	_, err := wa.Send(context.Background(), &Message{To: "+971501234567", Body: "أحمد", Language: "ar", TemplateName: "birthday_offer"})
	require.NoError(t, err)
	require.NotNil(t, got.Template)
	assert.Equal(t, "template", got.Type)
	assert.Equal(t, "birthday_offer", got.Template.Name)
	assert.Equal(t, "ar", got.Template.Language.Code)
	assert.Equal(t, "أحمد", got.Template.Components[0].Parameters[0].Text)
}

func TestWhatsApp_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     appErrors.Kind
		attempts int32
	}{
		{"rate limited", http.StatusBadRequest, `{"error":{"message":"Rate limit hit","code":130429}}`, appErrors.KindInfrastructure, 2},
		{"re-engagement window", http.StatusBadRequest, `{"error":{"message":"Re-engagement message","code":131047}}`, appErrors.KindRejection, 1},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"Unknown","code":1}}`, appErrors.KindInfrastructure, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			wa := &WhatsApp{BaseURL: srv.URL, APIVersion: "v19.0", PhoneNumberID: "PN1", Client: srv.Client(), Retry: testRetry()}
			_, err := wa.Send(context.Background(), &Message{To: "+971501234567", Body: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, appErrors.KindOf(err))
			assert.Equal(t, tt.attempts, atomic.LoadInt32(&calls))
		})
	}
}

func TestWhatsAppStatus(t *testing.T) {
	assert.Equal(t, model.DeliveryDelivered, WhatsAppStatus("read"))
	assert.Equal(t, model.DeliveryFailed, WhatsAppStatus("failed"))
	assert.Equal(t, model.DeliveryQueued, WhatsAppStatus("warning"))
}

func TestVerifyWhatsAppSignature(t *testing.T) {
	body := []byte(`{"entry":[]}`)
	sig := SignWhatsAppPayload(body, "app-secret")

	assert.True(t, strings.HasPrefix(sig, "sha256="))
	assert.True(t, VerifyWhatsAppSignature(body, "app-secret", sig))
	assert.False(t, VerifyWhatsAppSignature([]byte(`{"entry":[{}]}`), "app-secret", sig), "tampered body")
	assert.False(t, VerifyWhatsAppSignature(body, "other", sig))
	assert.False(t, VerifyWhatsAppSignature(body, "app-secret", strings.TrimPrefix(sig, "sha256=")))
	assert.False(t, VerifyWhatsAppSignature(body, "", SignWhatsAppPayload(body, "")), "no secret configured")
}

func TestRetryPolicy_TimeoutIsInfrastructure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	a := &GenericSMSA{BaseURL: srv.URL, AccountSID: "AC1", Client: srv.Client(),
		Retry: RetryPolicy{Timeout: 20 * time.Millisecond, MaxRetries: 0}}
	_, err := a.Send(context.Background(), &Message{To: "+971501234567", Body: "x"})
	assert.Equal(t, appErrors.KindInfrastructure, appErrors.KindOf(err))
}
