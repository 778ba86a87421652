package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
	"github.com/unclebandit/oudcrm-automation/internal/phone"
)

const RegionalName = "regional"

const (
	codingGSM7 = 0
	codingUCS2 = 8
)

// UAE mobile ranges: 050, 052, 054, 055, 056, 058.
var uaeMobile = regexp.MustCompile(`^\+9715[024568][0-9]{7}$`)

// Regional is the UAE SMS gateway. It has no status endpoint; a
// successful submit is the last thing we learn about a message.
type Regional struct {
	BaseURL        string
	APIKey         string
	SenderID       string
	CostPerSegment float64
	Client         HTTPDoer
	Retry          RetryPolicy
}

type regionalRequest struct {
	SenderID  string `json:"sender_id"`
	To        string `json:"to"`
	Message   string `json:"message"`
	Coding    int    `json:"coding"`
	Reference string `json:"reference,omitempty"`
}

type regionalResponse struct {
	Status       string `json:"status"`
	MessageID    string `json:"message_id"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (r *Regional) Name() string           { return RegionalName }
func (r *Regional) Channel() model.Channel { return model.ChannelSMS }

func (r *Regional) ValidateNumber(destination string) bool {
	return uaeMobile.MatchString(destination)
}

func (r *Regional) Send(ctx context.Context, msg *Message) (*Response, error) {
	enc := msg.Encoding
	if enc == EncodingAuto {
		enc = DetectEncoding(msg.Language, msg.Body)
	}
	sender := msg.SenderID
	if sender == "" {
		sender = r.SenderID
	}

	payload := regionalRequest{
		SenderID:  sender,
		To:        phone.Digits(msg.To),
		Message:   msg.Body,
		Coding:    codingGSM7,
		Reference: msg.Reference,
	}
	if enc == EncodingUCS2 {
		hexBody, err := EncodeUCS2(msg.Body)
		if err != nil {
			return nil, appErrors.Validation("encode message body", err)
		}
		payload.Message = hexBody
		payload.Coding = codingUCS2
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, appErrors.Validation("encode request", err)
	}

	var out regionalResponse
	err = r.Retry.Do(ctx, func(ctx context.Context) error {
		endpoint := strings.TrimRight(r.BaseURL, "/") + "/api/v1/sms/send"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return appErrors.Validation("build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", r.APIKey)

		code, body, err := roundTrip(r.Client, r.Name(), req)
		if err != nil {
			return err
		}
		if !isSuccess(code) {
			reason := snippet(body)
			var apiErr regionalResponse
			if json.Unmarshal(body, &apiErr) == nil && apiErr.ErrorMessage != "" {
				reason = apiErr.ErrorCode + " " + apiErr.ErrorMessage
			}
			return statusError(r.Name(), code, reason)
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return appErrors.Infrastructure(r.Name(), fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(out.Status, "success") {
		return nil, appErrors.Rejection(r.Name(), strings.TrimSpace(out.ErrorCode+" "+out.ErrorMessage))
	}

	segments := CountSegments(msg.Body, enc)
	return &Response{
		Success:           true,
		ProviderMessageID: out.MessageID,
		Cost:              float64(segments) * r.CostPerSegment,
		Segments:          segments,
	}, nil
}

func (r *Regional) QueryStatus(context.Context, string) (model.DeliveryStatus, error) {
	return model.DeliverySent, nil
}
