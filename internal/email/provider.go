package email

import "context"

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (string, error)
}

type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
