// Package netrc looks up machine credentials from a .netrc file. Only the
// subset of the format needed for basic-auth fetches is supported: machine,
// login, and password tokens.
package netrc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors
var (
	ErrMachineNotFound = errors.New("machine not found in netrc")
	ErrIncomplete      = errors.New("netrc entry missing login or password")
)

// Credentials holds one machine's login pair.
type Credentials struct {
	Login    string
	Password string
}

// DefaultPath returns the conventional netrc location in the user's home
// directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".netrc")
}

// Lookup reads the netrc file at path and returns credentials for machine.
func Lookup(path, machine string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read netrc %s: %w", path, err)
	}
	return parse(string(data), machine)
}

// parse scans the token stream for the named machine and collects its login
// and password. A "default" entry is ignored; credentials must be explicit.
func parse(content, machine string) (Credentials, error) {
	tokens := strings.Fields(content)

	// Find the start of the requested machine block.
	start := -1
	for i := 0; i+1 < len(tokens); i++ {
		if tokens[i] == "machine" && tokens[i+1] == machine {
			start = i + 2
			break
		}
	}
	if start < 0 {
		return Credentials{}, fmt.Errorf("%w: %s", ErrMachineNotFound, machine)
	}

	// Collect login/password until the next machine block begins.
	var creds Credentials
	for i := start; i < len(tokens); i++ {
		switch tokens[i] {
		case "machine", "default":
			i = len(tokens)
		case "login":
			if i+1 < len(tokens) {
				creds.Login = tokens[i+1]
				i++
			}
		case "password":
			if i+1 < len(tokens) {
				creds.Password = tokens[i+1]
				i++
			}
		}
	}
	if creds.Login == "" || creds.Password == "" {
		return Credentials{}, fmt.Errorf("%w: %s", ErrIncomplete, machine)
	}
	return creds, nil
}
