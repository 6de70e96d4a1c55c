// README: Subject and body rendering per notification kind.
package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type tmpl struct {
	subject string
	body    *template.Template
}

var templates = map[Kind]tmpl{
	KindBookingRequested: {
		subject: "New booking request",
		body: template.Must(template.New("requested").Option("missingkey=zero").Parse(
			`Hi {{.Name}},

{{.Data.actorName}} requested a seat on your ride from {{.Data.pickup}} to {{.Data.dropoff}} departing {{.Data.departure}}.
Open the app to confirm or reject the request.
`)),
	},
	KindBookingConfirmed: {
		subject: "Your booking is confirmed",
		body: template.Must(template.New("confirmed").Option("missingkey=zero").Parse(
			`Hi {{.Name}},

{{.Data.actorName}} confirmed your seat from {{.Data.pickup}} to {{.Data.dropoff}} departing {{.Data.departure}}.
`)),
	},
	KindBookingRejected: {
		subject: "Your booking request was declined",
		body: template.Must(template.New("rejected").Option("missingkey=zero").Parse(
			`Hi {{.Name}},

Your request for the ride from {{.Data.pickup}} to {{.Data.dropoff}} departing {{.Data.departure}} was declined.
`)),
	},
	KindRideCompleted: {
		subject: "Your ride is complete",
		body: template.Must(template.New("completed").Option("missingkey=zero").Parse(
			`Hi {{.Name}},

Your ride from {{.Data.pickup}} to {{.Data.dropoff}} is complete. You can now leave a review for {{.Data.actorName}}.
`)),
	},
	KindReviewReceived: {
		subject: "You received a new review",
		body: template.Must(template.New("review").Option("missingkey=zero").Parse(
			`Hi {{.Name}},

{{.Data.actorName}} rated your ride from {{.Data.pickup}} to {{.Data.dropoff}} {{.Data.rating}}/5.
{{with .Data.comment}}
"{{.}}"
{{end}}`)),
	},
}

// Render builds the email for a notification addressed to name <email>.
func Render(n Notification, name, email string) (Message, error) {
	t, ok := templates[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	var buf bytes.Buffer
	err := t.body.Execute(&buf, struct {
		Name string
		Data map[string]string
	}{name, n.Data})
	if err != nil {
		return Message{}, fmt.Errorf("render %s: %w", n.Kind, err)
	}
	return Message{To: email, Subject: t.subject, Body: buf.String()}, nil
}
