package wheel

import (
	"os"

	"github.com/wheelvet-project/wheelvet/internal/gpg"
)

// SignatureEvidence reports whether a detached PGP signature sits beside a
// wheel and whether it verifies against the configured keyring. Absence of a
// signature is ordinary, not an error.
type SignatureEvidence struct {
	Present  bool   `json:"present"`
	Verified bool   `json:"verified"`
	SigFile  string `json:"sig_file,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CheckSignature looks for {wheel}.asc next to the wheel and verifies it.
// A nil keyring means signature evidence is not configured; a present
// signature is then reported unverified with an explanatory message.
func CheckSignature(wheelPath string, keyRing gpg.KeyRing) SignatureEvidence {
	sigPath := wheelPath + ".asc"
	if _, err := os.Stat(sigPath); err != nil {
		return SignatureEvidence{Present: false}
	}

	ev := SignatureEvidence{Present: true, SigFile: sigPath}
	if keyRing == nil {
		ev.Error = "no keyring configured"
		return ev
	}

	if err := gpg.VerifyDetachedSignature(keyRing, wheelPath, sigPath); err != nil {
		ev.Error = err.Error()
		return ev
	}

	ev.Verified = true
	return ev
}
