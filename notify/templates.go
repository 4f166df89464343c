package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	texttemplate "text/template"
)

// TemplateID names a message template.
type TemplateID string

const (
	TemplateWelcome          TemplateID = "welcome"
	TemplateContact          TemplateID = "contact"
	TemplateBlogNotification TemplateID = "blog_notification"
	TemplateAdminSummary     TemplateID = "admin_summary"
)

// Category groups templates in the notification log.
type Category string

const (
	CategorySubscription     Category = "subscription"
	CategoryContact          Category = "contact"
	CategoryBlogNotification Category = "blog_notification"
)

// Message is a fully rendered email.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

type messageTemplate struct {
	category Category
	required []string
	subject  *texttemplate.Template
	text     *texttemplate.Template
}

// Templates renders messages by id. The "site" and "site_url" variables are
// filled in from the site settings unless the caller sets them.
type Templates struct {
	site    string
	siteURL string
	byID    map[TemplateID]messageTemplate
}

func mustText(name, src string) *texttemplate.Template {
	return texttemplate.Must(texttemplate.New(name).Option("missingkey=zero").Parse(src))
}

// NewTemplates returns the built-in template set.
func NewTemplates(site, siteURL string) *Templates {
	return &Templates{
		site:    site,
		siteURL: strings.TrimRight(siteURL, "/"),
		byID: map[TemplateID]messageTemplate{
			TemplateWelcome: {
				category: CategorySubscription,
				required: []string{"email"},
				subject:  mustText("welcome.subject", `Welcome to {{.site}}`),
				text: mustText("welcome.text", `Hi{{if .name}} {{.name}}{{end}},

Thanks for subscribing to {{.site}}. You will get an email whenever a new post goes live.

To stop these emails, unsubscribe at {{.site_url}}/unsubscribe?email={{urlquery .email}}{{if .unsubscribe_token}}&token={{.unsubscribe_token}}{{end}}`),
			},
			TemplateContact: {
				category: CategoryContact,
				required: []string{"from_name", "from_email", "message"},
				subject:  mustText("contact.subject", `New message from {{.from_name}}`),
				text: mustText("contact.text", `{{.from_name}} <{{.from_email}}> wrote:

{{.message}}`),
			},
			TemplateBlogNotification: {
				category: CategoryBlogNotification,
				required: []string{"title", "url"},
				subject:  mustText("blog_notification.subject", `New post on {{.site}}: {{.title}}`),
				text: mustText("blog_notification.text", `{{.title}}
{{if .excerpt}}
{{.excerpt}}
{{end}}
Read it at {{.url}}

You are receiving this because you subscribed to {{.site}}. Unsubscribe: {{.site_url}}/unsubscribe?email={{urlquery .email}}{{if .unsubscribe_token}}&token={{.unsubscribe_token}}{{end}}`),
			},
			TemplateAdminSummary: {
				category: CategoryBlogNotification,
				required: []string{"template", "succeeded", "failed"},
				subject:  mustText("admin_summary.subject", `Notification summary: {{.succeeded}} sent, {{.failed}} failed`),
				text: mustText("admin_summary.text", `Template: {{.template}}{{if .title}}
Post: {{.title}}{{end}}
Sent: {{.succeeded}}
Failed: {{.failed}}{{if .failures}}

{{.failures}}{{end}}`),
			},
		},
	}
}

// Category returns the log category of id, or "" for an unknown id.
func (t *Templates) Category(id TemplateID) Category {
	return t.byID[id].category
}

// Check reports a TemplateError when id is unknown or a required variable
// is missing. Variables the dispatcher fills per recipient are listed in
// implied.
func (t *Templates) Check(id TemplateID, vars map[string]string, implied ...string) error {
	mt, ok := t.byID[id]
	if !ok {
		return &TemplateError{Template: id, Unknown: true}
	}
	var missing []string
	for _, k := range mt.required {
		if strings.TrimSpace(vars[k]) != "" || contains(implied, k) {
			continue
		}
		missing = append(missing, k)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &TemplateError{Template: id, Missing: missing}
	}
	return nil
}

// Render produces the subject, plain text and HTML of id.
func (t *Templates) Render(id TemplateID, vars map[string]string) (Message, error) {
	if err := t.Check(id, vars); err != nil {
		return Message{}, err
	}
	mt := t.byID[id]
	data := make(map[string]string, len(vars)+2)
	data["site"] = t.site
	data["site_url"] = t.siteURL
	for k, v := range vars {
		data[k] = v
	}

	var subject, text bytes.Buffer
	if err := mt.subject.Execute(&subject, data); err != nil {
		return Message{}, &TemplateError{Template: id, Err: err}
	}
	if err := mt.text.Execute(&text, data); err != nil {
		return Message{}, &TemplateError{Template: id, Err: err}
	}
	msg := Message{
		Subject: strings.TrimSpace(subject.String()),
		Text:    text.String(),
	}
	html, err := buildEmailHTML(t.site, msg.Subject, msg.Text, template.HTML(data["html"]))
	if err != nil {
		return Message{}, &TemplateError{Template: id, Err: err}
	}
	msg.HTML = html
	return msg, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// emailTmpl wraps every message. Body is escaped; Rich is trusted HTML
// rendered by the content package and shown above the text when present.
var emailTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1.0">
  <title>{{.Subject}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f4f5;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;">
  <table width="100%" cellpadding="0" cellspacing="0" role="presentation" style="background-color:#f4f4f5;padding:40px 16px;">
    <tr>
      <td align="center">
        <table width="600" cellpadding="0" cellspacing="0" role="presentation" style="max-width:600px;width:100%;">
          <tr>
            <td style="background-color:#111827;padding:24px 40px;border-radius:12px 12px 0 0;">
              <span style="font-size:20px;font-weight:700;color:#ffffff;">{{.Site}}</span>
            </td>
          </tr>
          <tr>
            <td style="background-color:#ffffff;padding:36px 40px;">
              <p style="margin:0 0 16px;font-size:16px;font-weight:600;color:#111827;">{{.Subject}}</p>
              {{if .Rich}}<div style="font-size:14px;line-height:1.7;color:#374151;margin-bottom:16px;">{{.Rich}}</div>{{end}}
              <div style="font-size:14px;line-height:1.7;color:#374151;white-space:pre-wrap;word-break:break-word;">{{.Body}}</div>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>
`))

func buildEmailHTML(site, subject, body string, rich template.HTML) (string, error) {
	var buf bytes.Buffer
	err := emailTmpl.Execute(&buf, struct {
		Site, Subject, Body string
		Rich                template.HTML
	}{site, subject, body, rich})
	if err != nil {
		return "", fmt.Errorf("rendering email html: %w", err)
	}
	return buf.String(), nil
}
