package notify

import (
	"html/template"
	"strings"
)

var replyTemplate = template.Must(template.New("reply").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #1e293b; line-height: 1.6; margin: 0; padding: 0;">
  <div style="max-width: 600px; margin: 0 auto; padding: 24px;">
    <div style="background: #0f172a; color: white; padding: 20px 24px; border-radius: 10px 10px 0 0;"><h2 style="margin: 0; font-size: 18px;">{{.PropertyName}}</h2></div>
    <div style="background: #ffffff; padding: 24px; border: 1px solid #e2e8f0;">{{.Body}}</div>
    <div style="background: #f8fafc; padding: 16px 24px; border-radius: 0 0 10px 10px; font-size: 12px; color: #64748b; border: 1px solid #e2e8f0; border-top: none;">
      This is an automated response from our AI concierge.<br>
      A member of our team will follow up if needed.
    </div>
  </div>
</body>
</html>
`))

// GuestReply builds the email for a reply to a guest. bodyHTML is the
// already formatted reply and is embedded as is.
func GuestReply(to, subject, propertyName, bodyHTML, plain string) (EmailMessage, error) {
	subject = strings.TrimSpace(subject)
	switch {
	case subject == "":
		subject = "Re: Your enquiry"
	case !strings.HasPrefix(strings.ToLower(subject), "re:"):
		subject = "Re: " + subject
	}
	if strings.TrimSpace(propertyName) == "" {
		propertyName = "Hotel Concierge"
	}

	var b strings.Builder
	if err := replyTemplate.Execute(&b, struct {
		PropertyName string
		Body         template.HTML
	}{propertyName, template.HTML(bodyHTML)}); err != nil {
		return EmailMessage{}, err
	}
	return EmailMessage{
		To:      to,
		Subject: subject,
		Body:    plain,
		HTML:    b.String(),
	}, nil
}
