package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

const GenericSMSAName = "generic_a"

var genericAStatuses = map[string]model.DeliveryStatus{
	"accepted":    model.DeliveryQueued,
	"scheduled":   model.DeliveryQueued,
	"queued":      model.DeliveryQueued,
	"sending":     model.DeliveryQueued,
	"sent":        model.DeliverySent,
	"delivered":   model.DeliveryDelivered,
	"read":        model.DeliveryDelivered,
	"undelivered": model.DeliveryFailed,
	"failed":      model.DeliveryFailed,
	"canceled":    model.DeliveryFailed,
}

// GenericSMSA talks to an account-scoped Messages API with form-encoded
// requests and HTTP Basic authentication.
type GenericSMSA struct {
	BaseURL        string
	AccountSID     string
	APIKey         string
	APISecret      string
	From           string
	CostPerSegment float64
	Client         HTTPDoer
	Retry          RetryPolicy
}

type genericAMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	NumSegments  string `json:"num_segments"`
	Price        string `json:"price"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type genericAError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (a *GenericSMSA) Name() string           { return GenericSMSAName }
func (a *GenericSMSA) Channel() model.Channel { return model.ChannelSMS }

func (a *GenericSMSA) ValidateNumber(destination string) bool {
	return IsE164(destination)
}

func (a *GenericSMSA) messagesURL() string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages", strings.TrimRight(a.BaseURL, "/"), url.PathEscape(a.AccountSID))
}

func (a *GenericSMSA) Send(ctx context.Context, msg *Message) (*Response, error) {
	from := msg.SenderID
	if from == "" {
		from = a.From
	}
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", from)
	form.Set("Body", msg.Body)

	var out genericAMessage
	err := a.Retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.messagesURL()+".json", strings.NewReader(form.Encode()))
		if err != nil {
			return appErrors.Validation("build request", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(a.APIKey, a.APISecret)

		code, body, err := roundTrip(a.Client, a.Name(), req)
		if err != nil {
			return err
		}
		if !isSuccess(code) {
			var apiErr genericAError
			reason := snippet(body)
			if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
				reason = fmt.Sprintf("%d %s", apiErr.Code, apiErr.Message)
			}
			return statusError(a.Name(), code, reason)
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return appErrors.Infrastructure(a.Name(), fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.ErrorCode != nil {
		return nil, appErrors.Rejection(a.Name(), fmt.Sprintf("%d %s", *out.ErrorCode, out.ErrorMessage))
	}

	segments, _ := strconv.Atoi(out.NumSegments)
	if segments == 0 {
		segments = CountSegments(msg.Body, msg.Encoding)
	}
	cost := float64(segments) * a.CostPerSegment
	if p, err := strconv.ParseFloat(out.Price, 64); err == nil {
		cost = math.Abs(p)
	}
	return &Response{Success: true, ProviderMessageID: out.SID, Cost: cost, Segments: segments}, nil
}

func (a *GenericSMSA) PollsStatus() bool { return true }

func (a *GenericSMSA) QueryStatus(ctx context.Context, providerMessageID string) (model.DeliveryStatus, error) {
	var out genericAMessage
	err := a.Retry.Do(ctx, func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/%s.json", a.messagesURL(), url.PathEscape(providerMessageID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return appErrors.Validation("build request", err)
		}
		req.SetBasicAuth(a.APIKey, a.APISecret)

		code, body, err := roundTrip(a.Client, a.Name(), req)
		if err != nil {
			return err
		}
		if !isSuccess(code) {
			return statusError(a.Name(), code, snippet(body))
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return appErrors.Infrastructure(a.Name(), fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return GenericSMSAStatus(out.Status), nil
}

// GenericSMSAStatus maps a native message status to the shared vocabulary.
func GenericSMSAStatus(native string) model.DeliveryStatus {
	return normalizeStatus(genericAStatuses, native)
}
