package mailer

import (
	"net/smtp"

	"github.com/emersion/go-sasl"
)

// saslAuth adapts a go-sasl client to net/smtp. Unlike smtp.PlainAuth it
// does not refuse unencrypted connections, which the NONE encryption mode
// needs.
type saslAuth struct {
	client sasl.Client
}

func plainAuth(username, password string) smtp.Auth {
	return saslAuth{client: sasl.NewPlainClient("", username, password)}
}

func (a saslAuth) Start(*smtp.ServerInfo) (string, []byte, error) {
	return a.client.Start()
}

func (a saslAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}
