package migrator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	credentialPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)
	passwordParam     = regexp.MustCompile(`password=([^&\s]+)`)
)

// sanitizeConnectionError strips credentials of dbURL from err's message.
func sanitizeConnectionError(err error, dbURL string) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	if u, parseErr := url.Parse(dbURL); parseErr == nil && u.User != nil {
		if pass, ok := u.User.Password(); ok && pass != "" {
			msg = strings.ReplaceAll(msg, pass, "[REDACTED]")
			if escaped := url.QueryEscape(pass); escaped != pass {
				msg = strings.ReplaceAll(msg, escaped, "[REDACTED]")
			}
		}
	}
	msg = credentialPattern.ReplaceAllString(msg, "://$1:[REDACTED]@")
	msg = passwordParam.ReplaceAllString(msg, "password=[REDACTED]")

	return fmt.Errorf("migrate.New: %s", msg)
}
