package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/phone"
)

const WhatsAppName = "whatsapp"

// Cloud API error codes worth another attempt: rate limits, temporary
// unavailability and internal errors.
var whatsAppTransient = map[int]bool{
	2:      true,
	4:      true,
	80007:  true,
	130429: true,
	131000: true,
}

var whatsAppStatuses = map[string]model.DeliveryStatus{
	"sent":      model.DeliverySent,
	"delivered": model.DeliveryDelivered,
	"read":      model.DeliveryDelivered,
	"failed":    model.DeliveryFailed,
}

// WhatsApp sends through the WhatsApp Business Cloud API. Delivery
// receipts arrive on the webhook, not by polling.
type WhatsApp struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	Client        HTTPDoer
	Retry         RetryPolicy
}

type waMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	RecipientType    string      `json:"recipient_type,omitempty"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *waText     `json:"text,omitempty"`
	Template         *waTemplate `json:"template,omitempty"`
}

type waText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *waError `json:"error"`
}

type waError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func (w *WhatsApp) Name() string           { return WhatsAppName }
func (w *WhatsApp) Channel() model.Channel { return model.ChannelWhatsApp }

func (w *WhatsApp) ValidateNumber(destination string) bool {
	return IsE164(destination)
}

func (w *WhatsApp) payload(msg *Message) waMessage {
	m := waMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               phone.Digits(msg.To),
	}
	if msg.TemplateName == "" {
		m.Type = "text"
		m.Text = &waText{Body: msg.Body}
		return m
	}
	lang := model.LanguageEnglish
	if msg.Language == model.LanguageArabic {
		lang = model.LanguageArabic
	}
	m.Type = "template"
	m.Template = &waTemplate{
		Name:     msg.TemplateName,
		Language: waLanguage{Code: lang},
		Components: []waComponent{{
			Type:       "body",
			Parameters: []waParameter{{Type: "text", Text: msg.Body}},
		}},
	}
	return m
}

func (w *WhatsApp) Send(ctx context.Context, msg *Message) (*Response, error) {
	data, err := json.Marshal(w.payload(msg))
	if err != nil {
		return nil, appErrors.Validation("encode request", err)
	}

	var out waResponse
	err = w.Retry.Do(ctx, func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(w.BaseURL, "/"), w.APIVersion, w.PhoneNumberID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return appErrors.Validation("build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+w.AccessToken)

		code, body, err := roundTrip(w.Client, w.Name(), req)
		if err != nil {
			return err
		}
		out = waResponse{}
		_ = json.Unmarshal(body, &out)
		if out.Error != nil {
			reason := fmt.Sprintf("(#%d) %s", out.Error.Code, out.Error.Message)
			if whatsAppTransient[out.Error.Code] || code == http.StatusTooManyRequests || code >= 500 {
				return appErrors.Infrastructure(w.Name(), errors.New(reason))
			}
			return appErrors.Rejection(w.Name(), reason)
		}
		if !isSuccess(code) {
			return statusError(w.Name(), code, snippet(body))
		}
		if len(out.Messages) == 0 {
			return appErrors.Infrastructure(w.Name(), errors.New("response carried no message id"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{Success: true, ProviderMessageID: out.Messages[0].ID, Segments: 1}, nil
}

func (w *WhatsApp) QueryStatus(context.Context, string) (model.DeliveryStatus, error) {
	return model.DeliverySent, nil
}

// SignWhatsAppPayload returns the X-Hub-Signature-256 value for body.
func SignWhatsAppPayload(body []byte, appSecret string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyWhatsAppSignature checks an X-Hub-Signature-256 header against the
// app secret. An empty secret verifies nothing.
func VerifyWhatsAppSignature(body []byte, appSecret, header string) bool {
	if appSecret == "" || !strings.HasPrefix(header, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(SignWhatsAppPayload(body, appSecret)), []byte(header))
}

// WhatsAppStatus maps a webhook status callback value.
func WhatsAppStatus(native string) model.DeliveryStatus {
	return normalizeStatus(whatsAppStatuses, native)
}
