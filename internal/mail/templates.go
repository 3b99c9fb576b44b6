package mail

import (
	htmltemplate "html/template"
	"text/template"
)

var resetText = template.Must(template.New("reset.txt").Parse(`Hi {{.Name}},

To reset your password, visit: {{.Link}}

This link expires in {{.ExpiresIn}}. If you did not request a password reset, you can ignore this email.
{{if .SupportEmail}}
Need help? Contact {{.SupportEmail}}
{{end}}`))

var verifyText = template.Must(template.New("verify.txt").Parse(`Hi {{.Name}},

Welcome to Yhal! Please confirm your email address by visiting: {{.Link}}

This link expires in {{.ExpiresIn}}.
{{if .SupportEmail}}
Need help? Contact {{.SupportEmail}}
{{end}}`))

const layoutHTML = `{{define "layout"}}<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
.button { display: inline-block; padding: 12px 24px; background-color: #4a6baf; color: white !important; text-decoration: none; border-radius: 4px; margin: 20px 0; }
</style>
</head>
<body>
{{template "content" .}}
{{if .SupportEmail}}<p>Need help? Contact <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a></p>{{end}}
</body>
</html>{{end}}`

var resetHTML = htmltemplate.Must(htmltemplate.Must(htmltemplate.New("reset.html").Parse(layoutHTML)).Parse(`{{define "content"}}
<h2 style="color: #4a6baf; text-align: center;">Password Reset</h2>
<p>Hi {{.Name}}, click below to reset your password:</p>
<div style="text-align: center;"><a href="{{.Link}}" class="button">Reset Password</a></div>
<p><small>This link expires in {{.ExpiresIn}}.</small></p>
{{end}}{{template "layout" .}}`))

var verifyHTML = htmltemplate.Must(htmltemplate.Must(htmltemplate.New("verify.html").Parse(layoutHTML)).Parse(`{{define "content"}}
<h2 style="color: #4a6baf; text-align: center;">Verify your email</h2>
<p>Hi {{.Name}}, welcome to Yhal! Please confirm your email address:</p>
<div style="text-align: center;"><a href="{{.Link}}" class="button">Verify Email</a></div>
<p><small>This link expires in {{.ExpiresIn}}.</small></p>
{{end}}{{template "layout" .}}`))
