package updi

import "strings"

// SIB is the decoded form of the 32-byte System Information Block the
// target returns on request: fixed-width ASCII fields identifying the
// device family, NVM controller version, on-chip debug support and
// oscillator.
type SIB struct {
	Family string
	NVM    string
	OCD    string
	Osc    string
	Extra  string
}

// decodeSIB parses a raw SIB blob. A SIB shorter than 19 bytes or
// containing non-ASCII bytes is invalid; the caller (Session) retries
// exactly once via a double break before treating this as fatal.
func decodeSIB(raw []byte) (*SIB, error) {
	for _, b := range raw {
		if b > 0x7F {
			return nil, newErr(KindProtocol, "SIB contains non-ASCII bytes", nil)
		}
	}
	s := string(raw)
	if len(strings.TrimRight(s, "\x00")) < 19 {
		return nil, newErr(KindProtocol, "SIB shorter than 19 bytes", nil)
	}

	family := strings.TrimSpace(s[0:8])
	nvm := fieldAfterTag(s, "NVM:")
	ocd := fieldAfterTag(s, "OCD:")
	osc := ""
	if len(s) >= 19 {
		osc = strings.TrimSpace(s[15:19])
	}
	extra := ""
	if len(s) > 19 {
		extra = strings.TrimSpace(strings.TrimRight(s[19:], "\x00"))
	}

	return &SIB{Family: family, NVM: nvm, OCD: ocd, Osc: osc, Extra: extra}, nil
}

// fieldAfterTag returns the single character following "TAG:" in s, or
// "" if the tag isn't present.
func fieldAfterTag(s, tag string) string {
	idx := strings.Index(s, tag)
	if idx < 0 || idx+len(tag) >= len(s) {
		return ""
	}
	return string(s[idx+len(tag)])
}
