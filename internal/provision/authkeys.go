package provision

import (
	"strings"

	"github.com/enrollkit/enroll/internal/errors"
)

// ExclusiveAuthorizedKeys returns the authorized_keys content for an
// account that accepts exactly one key. Exclusive on purpose: any key
// previously present, including ones an image baked in, stops working.
func ExclusiveAuthorizedKeys(publicKey string) (string, error) {
	key := strings.TrimSpace(publicKey)
	if key == "" {
		return "", errors.New(errors.ErrProvision,
			"Operator public key is empty",
			"Check admin.public_key_file in .enroll.yaml")
	}
	if strings.ContainsAny(key, "\n\r") {
		return "", errors.New(errors.ErrProvision,
			"Operator public key file holds more than one line",
			"The admin account gets exactly one authorized key; point admin.public_key_file at a single public key")
	}
	if !strings.HasPrefix(key, "ssh-") && !strings.HasPrefix(key, "ecdsa-") && !strings.HasPrefix(key, "sk-") {
		return "", errors.New(errors.ErrProvision,
			"Operator public key doesn't look like an OpenSSH public key",
			"Expected a line starting with ssh-ed25519, ssh-rsa, ecdsa-*, or sk-*; is this a private key?")
	}
	return key + "\n", nil
}
