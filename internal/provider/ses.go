package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

const SESName = "ses"

// SESClient is the slice of the SES v2 API the adapter uses.
type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

var sesThrottling = map[string]bool{
	"TooManyRequestsException": true,
	"ThrottlingException":      true,
	"LimitExceededException":   true,
	"InternalFailure":          true,
	"ServiceUnavailable":       true,
}

// SES sends email through Amazon SES v2.
type SES struct {
	Client    SESClient
	FromEmail string
	FromName  string
	Retry     RetryPolicy
}

// NewSESClient builds an SES v2 client, using static credentials when
// both keys are provided and the default chain otherwise.
func NewSESClient(ctx context.Context, region, accessKey, secretKey string) (*sesv2.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sesv2.NewFromConfig(cfg), nil
}

func (s *SES) Name() string           { return SESName }
func (s *SES) Channel() model.Channel { return model.ChannelEmail }

func (s *SES) ValidateNumber(string) bool { return true }

func (s *SES) Send(ctx context.Context, msg *Message) (*Response, error) {
	from := s.FromEmail
	if s.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.FromName, s.FromEmail)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.Reference != "" {
		input.EmailTags = []types.MessageTag{{Name: aws.String("execution_id"), Value: aws.String(msg.Reference)}}
	}

	var out *sesv2.SendEmailOutput
	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.Client.SendEmail(ctx, input)
		if err != nil {
			return classifySES(err)
		}
		return nil
	})
	if appErrors.KindOf(err) == appErrors.KindRejection {
		return &Response{Success: false, Error: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	id := ""
	if out != nil && out.MessageId != nil {
		id = *out.MessageId
	}
	return &Response{Success: true, ProviderMessageID: id, Segments: 1}, nil
}

func (s *SES) QueryStatus(context.Context, string) (model.DeliveryStatus, error) {
	return model.DeliverySent, nil
}

func classifySES(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sesThrottling[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer {
			return appErrors.Infrastructure(SESName, err)
		}
		return appErrors.Rejection(SESName, apiErr.ErrorCode()+": "+apiErr.ErrorMessage())
	}
	return appErrors.Infrastructure(SESName, err)
}
