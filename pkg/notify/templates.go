package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// 模板名称
const (
	TmplAdminApplication    = "admin_application"
	TmplAdminSpace          = "admin_space"
	TmplAdminLead           = "admin_lead"
	TmplAdminExpert         = "admin_expert"
	TmplApplicationReceived = "application_received"
	TmplApplicationApproved = "application_approved"
	TmplApplicationRejected = "application_rejected"
	TmplSpaceReceived       = "space_received"
	TmplSpaceApproved       = "space_approved"
	TmplSpaceRejected       = "space_rejected"
	TmplAdminInvite         = "admin_invite"
	TmplRsvpConfirmation    = "rsvp_confirmation"
	TmplEventInvite         = "event_invite"
)

var funcs = template.FuncMap{
	"datetime": func(t time.Time) string { return t.UTC().Format("Mon, Jan 2 2006 15:04 MST") },
}

const layout = `
{{define "header"}}<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2 style="color:#1f3a5f">Coworking Alliance</h2>{{end}}
{{define "footer"}}<p style="color:#888;font-size:12px">You are receiving this email from the Coworking Alliance.</p></div>{{end}}
`

var bodies = map[string]string{
	TmplAdminApplication: `{{template "header"}}
<p>A new membership application was submitted.</p>
<table>
<tr><td><strong>Name</strong></td><td>{{.Name}}</td></tr>
<tr><td><strong>Email</strong></td><td>{{.Email}}</td></tr>
{{if .Company}}<tr><td><strong>Company</strong></td><td>{{.Company}}</td></tr>{{end}}
{{if .MembershipType}}<tr><td><strong>Membership</strong></td><td>{{.MembershipType}}</td></tr>{{end}}
{{if .Phone}}<tr><td><strong>Phone</strong></td><td>{{.Phone}}</td></tr>{{end}}
{{if .Website}}<tr><td><strong>Website</strong></td><td>{{.Website}}</td></tr>{{end}}
</table>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{template "footer"}}`,

	TmplAdminSpace: `{{template "header"}}
<p>A new space was submitted to the directory and is waiting for review.</p>
<p><strong>{{.Name}}</strong><br>{{.Address}}{{if .City}}, {{.City}}{{end}}{{if .State}}, {{.State}}{{end}}</p>
<p>Submitted by {{.SubmitterName}} &lt;{{.SubmitterEmail}}&gt;</p>
{{if .Website}}<p><a href="{{.Website}}">{{.Website}}</a></p>{{end}}
{{template "footer"}}`,

	TmplAdminLead: `{{template "header"}}
<p>New {{.Source}} lead.</p>
<table>
<tr><td><strong>Name</strong></td><td>{{.Name}}</td></tr>
<tr><td><strong>Email</strong></td><td>{{.Email}}</td></tr>
{{if .Company}}<tr><td><strong>Company</strong></td><td>{{.Company}}</td></tr>{{end}}
{{if .Interest}}<tr><td><strong>Interest</strong></td><td>{{.Interest}}</td></tr>{{end}}
</table>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{template "footer"}}`,

	TmplAdminExpert: `{{template "header"}}
<p>{{.Name}} &lt;{{.Email}}&gt; applied to join the expert network.</p>
<table>
{{range $k, $v := .Details}}<tr><td><strong>{{$k}}</strong></td><td>{{$v}}</td></tr>
{{end}}</table>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{template "footer"}}`,

	TmplApplicationReceived: `{{template "header"}}
<p>Hi {{.Name}},</p>
<p>Thanks for applying to join the Coworking Alliance. Our team will review your application and get back to you shortly.</p>
{{template "footer"}}`,

	TmplApplicationApproved: `{{template "header"}}
<p>Hi {{.Name}},</p>
<p>Welcome aboard! Your membership application has been approved.</p>
{{if .ReviewNotes}}<p>{{.ReviewNotes}}</p>{{end}}
{{template "footer"}}`,

	TmplApplicationRejected: `{{template "header"}}
<p>Hi {{.Name}},</p>
<p>Thank you for your interest. Unfortunately we are unable to approve your application at this time.</p>
{{if .ReviewNotes}}<p>{{.ReviewNotes}}</p>{{end}}
{{template "footer"}}`,

	TmplSpaceReceived: `{{template "header"}}
<p>Hi {{.SubmitterName}},</p>
<p>We received your listing for <strong>{{.Name}}</strong>. It will appear in the directory once it has been reviewed.</p>
{{template "footer"}}`,

	TmplSpaceApproved: `{{template "header"}}
<p>Good news! <strong>{{.Name}}</strong> is now live in the Coworking Alliance directory.</p>
{{template "footer"}}`,

	TmplSpaceRejected: `{{template "header"}}
<p>We reviewed your listing for <strong>{{.Name}}</strong> and could not publish it.</p>
{{if .RejectionReason}}<p>Reason: {{.RejectionReason}}</p>{{end}}
{{template "footer"}}`,

	TmplAdminInvite: `{{template "header"}}
<p>You have been invited to manage the Coworking Alliance website as <strong>{{.Role}}</strong>.</p>
<p><a href="{{.InviteURL}}">Accept the invitation</a></p>
<p>This link expires on {{datetime .ExpiresAt}}.</p>
{{template "footer"}}`,

	TmplRsvpConfirmation: `{{template "header"}}
<p>Hi {{.Rsvp.Name}},</p>
<p>You're registered for <strong>{{.Event.Title}}</strong> on {{datetime .Event.StartTime}}.</p>
{{if .Event.Location}}<p>Location: {{.Event.Location}}</p>{{end}}
{{template "footer"}}`,

	TmplEventInvite: `{{template "header"}}
<p>You're invited to <strong>{{.Event.Title}}</strong> on {{datetime .Event.StartTime}}.</p>
{{if .Event.Location}}<p>Location: {{.Event.Location}}</p>{{end}}
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{if .URL}}<p><a href="{{.URL}}">Event details</a></p>{{end}}
{{template "footer"}}`,
}

var templates = parseTemplates()

func parseTemplates() map[string]*template.Template {
	base := template.Must(template.New("layout").Funcs(funcs).Parse(layout))
	out := make(map[string]*template.Template, len(bodies))
	for name, body := range bodies {
		out[name] = template.Must(template.Must(base.Clone()).New(name).Parse(body))
	}
	return out
}

// Render 渲染指定模板
func Render(name string, data interface{}) (string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
