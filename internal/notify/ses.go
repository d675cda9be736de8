package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/osteele/liquid"

	"github.com/deskpilot/support-triage/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client used for notices.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures the email channel.
type SESConfig struct {
	Region     string
	AccessKey  string
	SecretKey  string
	FromEmail  string
	FromName   string
	Recipients []string
	// AdminURL is the base of the support console, used for deep links.
	AdminURL string
}

const (
	subjectTemplate = `[{{ priority }}] Escalation: {{ subject | default: "conversation" }} ({{ reason }})`

	textTemplate = `Conversation {{ id }} needs a human ({{ reason }}).

Customer: {{ customer_name }} <{{ customer_email }}>
Category: {{ category }}  Priority: {{ priority }}  Language: {{ language }}
{% if keywords != "" %}Keywords: {{ keywords }}
{% endif %}{% if error_codes != "" %}Error codes: {{ error_codes }}
{% endif %}{% if frustrated %}The customer seems frustrated.
{% endif %}
{% for m in messages %}[{{ m.sender }}] {{ m.content }}
{% endfor %}
{{ link }}`

	htmlTemplate = `<h2>Conversation needs a human</h2>
<p><strong>Reason:</strong> {{ reason }}<br>
<strong>Customer:</strong> {{ customer_name | escape }} &lt;{{ customer_email | escape }}&gt;<br>
<strong>Category:</strong> {{ category }} &middot; <strong>Priority:</strong> {{ priority }}</p>
{% if frustrated %}<p><em>The customer seems frustrated.</em></p>{% endif %}
<table>{% for m in messages %}
<tr><td><strong>{{ m.sender }}</strong></td><td>{{ m.content | escape | newline_to_br }}</td></tr>{% endfor %}
</table>
<p><a href="{{ link }}">Open conversation</a></p>`
)

// SESNotifier emails escalation notices to the support team through SES.
type SESNotifier struct {
	client SESAPI
	cfg    SESConfig

	subject *liquid.Template
	text    *liquid.Template
	html    *liquid.Template
}

// NewSESClient builds an SES v2 client from static credentials, or from the
// default credential chain when no keys are given.
func NewSESClient(ctx context.Context, cfg SESConfig) (*sesv2.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sesv2.NewFromConfig(awsCfg), nil
}

// NewSESNotifier parses the notice templates and returns the notifier.
func NewSESNotifier(client SESAPI, cfg SESConfig) (*SESNotifier, error) {
	if client == nil {
		return nil, errors.New("ses notifier: nil client")
	}
	if cfg.FromEmail == "" || len(cfg.Recipients) == 0 {
		return nil, errors.New("ses notifier: from address and recipients are required")
	}
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value interface{}, def string) interface{} {
		if s, ok := value.(string); value == nil || (ok && s == "") {
			return def
		}
		return value
	})

	n := &SESNotifier{client: client, cfg: cfg}
	for _, t := range []struct {
		dst **liquid.Template
		src string
	}{
		{&n.subject, subjectTemplate},
		{&n.text, textTemplate},
		{&n.html, htmlTemplate},
	} {
		tpl, err := engine.ParseString(t.src)
		if err != nil {
			return nil, fmt.Errorf("parse notice template: %w", err)
		}
		*t.dst = tpl
	}
	return n, nil
}

// SendEscalationNotice implements Notifier.
func (s *SESNotifier) SendEscalationNotice(ctx context.Context, n Notice) error {
	vars := s.bindings(n)
	subject, err := s.subject.RenderString(vars)
	if err != nil {
		return fmt.Errorf("render subject: %w", err)
	}
	text, err := s.text.RenderString(vars)
	if err != nil {
		return fmt.Errorf("render text body: %w", err)
	}
	html, err := s.html.RenderString(vars)
	if err != nil {
		return fmt.Errorf("render html body: %w", err)
	}

	from := s.cfg.FromEmail
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: s.cfg.Recipients},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(strings.TrimSpace(subject)), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("conversation_id"), Value: aws.String(tagValue(n.Conversation.ID))},
			{Name: aws.String("reason"), Value: aws.String(tagValue(n.Summary.Reason))},
		},
	}
	if n.Conversation.Customer.Email != "" {
		input.ReplyToAddresses = []string{n.Conversation.Customer.Email}
	}

	out, sendErr := s.client.SendEmail(ctx, input)
	if sendErr != nil {
		return fmt.Errorf("ses send: %w", sendErr)
	}
	messageID := ""
	if out != nil && out.MessageId != nil {
		messageID = *out.MessageId
	}
	logger.Info("[notify.SES] escalation notice sent",
		"conversation_id", n.Conversation.ID, "message_id", messageID, "recipients", len(s.cfg.Recipients))
	return nil
}

func (s *SESNotifier) bindings(n Notice) map[string]interface{} {
	msgs := make([]map[string]interface{}, 0, len(n.History))
	for _, m := range n.History {
		if m.IsInternal {
			continue
		}
		msgs = append(msgs, map[string]interface{}{
			"sender":  string(m.SenderType),
			"content": m.Content,
		})
	}
	link := strings.TrimRight(s.cfg.AdminURL, "/") + "/conversations/" + n.Conversation.ID
	return map[string]interface{}{
		"id":             n.Conversation.ID,
		"subject":        n.Conversation.Subject,
		"reason":         n.Summary.Reason,
		"customer_name":  n.Conversation.Customer.Name,
		"customer_email": n.Conversation.Customer.Email,
		"category":       string(n.Summary.Category),
		"priority":       string(n.Summary.Priority),
		"language":       n.Summary.Language,
		"keywords":       strings.Join(n.Summary.Keywords, ", "),
		"error_codes":    strings.Join(n.Summary.ErrorCodes, ", "),
		"frustrated":     n.Summary.Frustrated,
		"messages":       msgs,
		"link":           link,
	}
}

// tagValue keeps SES message tag values within the allowed character set.
func tagValue(s string) string {
	if s == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}
