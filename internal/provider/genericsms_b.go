package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/phone"
)

const GenericSMSBName = "generic_b"

const (
	genericBOK        = "0"
	genericBThrottled = "1"
)

var genericBStatuses = map[string]model.DeliveryStatus{
	"acceptd":  model.DeliverySent,
	"buffered": model.DeliverySent,
	"delivrd":  model.DeliveryDelivered,
	"expired":  model.DeliveryFailed,
	"failed":   model.DeliveryFailed,
	"rejectd":  model.DeliveryFailed,
	"unknown":  model.DeliveryQueued,
}

// GenericSMSB talks to an SMS API that takes credentials in the form body
// and reports a per-part status code.
type GenericSMSB struct {
	BaseURL   string
	APIKey    string
	APISecret string
	From      string
	Client    HTTPDoer
	Retry     RetryPolicy
}

type genericBResponse struct {
	MessageCount string `json:"message-count"`
	Messages     []struct {
		MessageID    string `json:"message-id"`
		Status       string `json:"status"`
		MessagePrice string `json:"message-price"`
		ErrorText    string `json:"error-text"`
	} `json:"messages"`
}

type genericBSearch struct {
	MessageID   string `json:"message-id"`
	Status      string `json:"status"`
	FinalStatus string `json:"final-status"`
}

func (b *GenericSMSB) Name() string           { return GenericSMSBName }
func (b *GenericSMSB) Channel() model.Channel { return model.ChannelSMS }

func (b *GenericSMSB) ValidateNumber(destination string) bool {
	return IsE164(destination)
}

func (b *GenericSMSB) Send(ctx context.Context, msg *Message) (*Response, error) {
	from := msg.SenderID
	if from == "" {
		from = b.From
	}
	enc := msg.Encoding
	if enc == EncodingAuto {
		enc = DetectEncoding(msg.Language, msg.Body)
	}

	form := url.Values{}
	form.Set("api_key", b.APIKey)
	form.Set("api_secret", b.APISecret)
	form.Set("from", from)
	form.Set("to", phone.Digits(msg.To))
	form.Set("text", msg.Body)
	if enc == EncodingUCS2 {
		form.Set("type", "unicode")
	}
	if msg.Reference != "" {
		form.Set("client-ref", msg.Reference)
	}

	var out genericBResponse
	err := b.Retry.Do(ctx, func(ctx context.Context) error {
		endpoint := strings.TrimRight(b.BaseURL, "/") + "/sms/json"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return appErrors.Validation("build request", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		code, body, err := roundTrip(b.Client, b.Name(), req)
		if err != nil {
			return err
		}
		if !isSuccess(code) {
			return statusError(b.Name(), code, snippet(body))
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return appErrors.Infrastructure(b.Name(), fmt.Errorf("decode response: %w", err))
		}
		if len(out.Messages) == 0 {
			return appErrors.Infrastructure(b.Name(), errors.New("empty messages in response"))
		}
		// Throttling is reported in the body with a 200.
		if first := out.Messages[0]; first.Status == genericBThrottled {
			return appErrors.Infrastructure(b.Name(), fmt.Errorf("throttled: %s", first.ErrorText))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		cost     float64
		accepted []string
		rejected string
	)
	for _, m := range out.Messages {
		if m.Status != genericBOK {
			if rejected == "" {
				rejected = fmt.Sprintf("status %s: %s", m.Status, m.ErrorText)
			}
			continue
		}
		accepted = append(accepted, m.MessageID)
		if p, err := strconv.ParseFloat(m.MessagePrice, 64); err == nil {
			cost += p
		}
	}
	// Parts already accepted are billed and delivered; the reason names them
	// so a retry of the execution is a deliberate decision.
	if rejected != "" {
		if len(accepted) > 0 {
			rejected += fmt.Sprintf(" (%d of %d parts accepted: %s; cost %.5f)",
				len(accepted), len(out.Messages), strings.Join(accepted, ","), cost)
		}
		return &Response{Success: false, Error: rejected, Cost: cost, Segments: len(accepted)}, nil
	}

	segments, err := strconv.Atoi(out.MessageCount)
	if err != nil || segments == 0 {
		segments = len(out.Messages)
	}
	return &Response{
		Success:           true,
		ProviderMessageID: out.Messages[0].MessageID,
		Cost:              cost,
		Segments:          segments,
	}, nil
}

func (b *GenericSMSB) PollsStatus() bool { return true }

func (b *GenericSMSB) QueryStatus(ctx context.Context, providerMessageID string) (model.DeliveryStatus, error) {
	q := url.Values{}
	q.Set("api_key", b.APIKey)
	q.Set("api_secret", b.APISecret)
	q.Set("id", providerMessageID)

	var out genericBSearch
	err := b.Retry.Do(ctx, func(ctx context.Context) error {
		endpoint := strings.TrimRight(b.BaseURL, "/") + "/search/message?" + q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return appErrors.Validation("build request", err)
		}
		code, body, err := roundTrip(b.Client, b.Name(), req)
		if err != nil {
			return err
		}
		if !isSuccess(code) {
			return statusError(b.Name(), code, snippet(body))
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return appErrors.Infrastructure(b.Name(), fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if out.FinalStatus != "" {
		return GenericSMSBStatus(out.FinalStatus), nil
	}
	return GenericSMSBStatus(out.Status), nil
}

// GenericSMSBStatus maps a native delivery receipt status.
func GenericSMSBStatus(native string) model.DeliveryStatus {
	return normalizeStatus(genericBStatuses, native)
}
