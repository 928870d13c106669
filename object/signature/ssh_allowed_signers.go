package signature

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ParseAllowedSigners reads git's gpg.ssh.allowedSignersFile format:
// each line is "principal(s) [option=...] key-type base64-key [comment]",
// blank lines and "#" comments are skipped, and multiple comma-separated
// principals may share one key. Grounded on go-git's
// ParseAllowedSigners (ssh_allowed_signers.go).
func ParseAllowedSigners(r io.Reader) (map[string]ssh.PublicKey, error) {
	const maxLineSize = 65536
	out := make(map[string]ssh.PublicKey)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := parseAllowedSignersLine(text, out); err != nil {
			return nil, fmt.Errorf("signature: allowed signers line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("signature: read allowed signers: %w", err)
	}
	return out, nil
}

func parseAllowedSignersLine(line string, out map[string]ssh.PublicKey) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("expected at least a principal and a public key")
	}
	principals := fields[0]

	keyStart := 1
	for keyStart < len(fields) && isAllowedSignersOption(fields[keyStart]) {
		keyStart++
	}
	if keyStart >= len(fields) {
		return fmt.Errorf("no public key found")
	}

	pubKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.Join(fields[keyStart:], " ")))
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}

	for _, principal := range strings.Split(principals, ",") {
		principal = strings.TrimSpace(principal)
		if principal == "" {
			continue
		}
		out[principal] = pubKey
	}
	return nil
}

func isAllowedSignersOption(field string) bool {
	return strings.HasPrefix(field, "namespaces=") ||
		strings.HasPrefix(field, "valid-after=") ||
		strings.HasPrefix(field, "valid-before=") ||
		field == "cert-authority"
}
