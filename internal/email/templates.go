package email

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

type mailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[Kind]mailTemplate{
	KindVerification: {
		subject: "Verify your email",
		body: template.Must(template.New("verification").Parse(
			"Hi {{.Name}},\n\n" +
				"Thanks for signing up. Confirm your email address by opening the link below:\n\n" +
				"{{.Link}}\n\n" +
				"The link expires at {{.Expires}} UTC.\n" +
				"If you did not create an account you can ignore this message.\n")),
	},
	KindWelcome: {
		subject: "Welcome to Flowdesk",
		body: template.Must(template.New("welcome").Parse(
			"Hi {{.Name}},\n\n" +
				"Your email is verified and your account is ready.\n" +
				"{{if .Link}}Sign in at {{.Link}}\n{{end}}")),
	},
	KindPasswordReset: {
		subject: "Reset your password",
		body: template.Must(template.New("password_reset").Parse(
			"Hi {{.Name}},\n\n" +
				"We received a request to reset your password. Open the link below to choose a new one:\n\n" +
				"{{.Link}}\n\n" +
				"The link expires at {{.Expires}} UTC.\n" +
				"If you did not ask for this you can ignore this message.\n")),
	},
	KindPasswordChanged: {
		subject: "Your password was changed",
		body: template.Must(template.New("password_changed").Parse(
			"Hi {{.Name}},\n\n" +
				"The password for your account was just changed.\n" +
				"If this was not you, reset your password immediately.\n")),
	},
}

type templateData struct {
	Name    string
	Link    string
	Expires string
}

// Render devuelve asunto y cuerpo en texto plano para el mensaje.
func Render(msg Message) (string, string, error) {
	tpl, ok := templates[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email kind %q", msg.Kind)
	}
	data := templateData{
		Name: msg.Payload.Name,
		Link: msg.Payload.Link,
	}
	if data.Name == "" {
		data.Name = "there"
	}
	if !msg.Payload.ExpiresAt.IsZero() {
		data.Expires = msg.Payload.ExpiresAt.UTC().Format(time.RFC1123)
	}
	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return tpl.subject, buf.String(), nil
}
