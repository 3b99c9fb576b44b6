package mail

import (
	"context"
	"fmt"
	netmail "net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// sesAPI はSESクライアントのうちSendEmailのみを抽出したインターフェース。
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender はAmazon SESでメールを送信する。
type SESSender struct {
	client sesAPI
	source string
}

// NewSESSender は既定の認証情報チェーンでSESクライアントを構築する。
func NewSESSender(ctx context.Context, region, from, fromName string) (*SESSender, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("mail: loading AWS config: %w", err)
	}
	return newSESSender(ses.NewFromConfig(cfg), from, fromName), nil
}

func newSESSender(client sesAPI, from, fromName string) *SESSender {
	source := (&netmail.Address{Name: fromName, Address: from}).String()
	return &SESSender{client: client, source: source}
}

// Send はテキストとHTMLの本文でメールを送信する。
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}

	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
		Source: aws.String(s.source),
	})
	if err != nil {
		return fmt.Errorf("mail: sending via ses: %w", err)
	}
	return nil
}
