package model

import (
	"fmt"
	"strings"
)

// Encryption selects how the SMTP connection is secured.
type Encryption string

// Encryption constants.
const (
	EncryptionSSL      Encryption = "SSL"
	EncryptionSTARTTLS Encryption = "STARTTLS"
	EncryptionNone     Encryption = "NONE"
)

// Encryptions lists the accepted encryption modes in display order.
var Encryptions = []Encryption{EncryptionSSL, EncryptionSTARTTLS, EncryptionNone}

// ParseEncryption maps a user-supplied value onto an Encryption,
// case-insensitively. An empty value yields SSL.
func ParseEncryption(s string) (Encryption, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "SSL", "TLS":
		return EncryptionSSL, nil
	case "STARTTLS":
		return EncryptionSTARTTLS, nil
	case "NONE":
		return EncryptionNone, nil
	default:
		return "", fmt.Errorf("unknown encryption %q (want SSL, STARTTLS or NONE)", s)
	}
}

// SMTPProfile is the single active SMTP credential set of a deployment.
type SMTPProfile struct {
	Server     string     `json:"server" db:"server" validate:"required,hostname_rfc1123|ip"`
	Port       int        `json:"port" db:"port" validate:"required,min=1,max=65535"`
	Address    string     `json:"address" db:"address" validate:"required,email"`
	Secret     string     `json:"-" db:"secret"`
	Encryption Encryption `json:"encryption" db:"encryption" validate:"required,oneof=SSL STARTTLS NONE"`
}

// Addr returns the host:port dial address.
func (p SMTPProfile) Addr() string {
	return fmt.Sprintf("%s:%d", p.Server, p.Port)
}
