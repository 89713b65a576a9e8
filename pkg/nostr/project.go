package nostr

import "fmt"

// ProjectID formats the canonical project identifier for a project
// definition event: "<kind>:<authorPubkey>:<dTag>".
func ProjectID(kind int, authorPubkey, dTag string) string {
	return fmt.Sprintf("%d:%s:%s", kind, authorPubkey, dTag)
}

// AddressableRef parses an "a" tag value of the form "<kind>:<pubkey>:<d>".
type AddressableRef struct {
	Kind   int
	Pubkey string
	DTag   string
}

// ParseAddressable parses the value of an "a" tag.
func ParseAddressable(value string) (AddressableRef, bool) {
	var ref AddressableRef
	var kind int
	n, err := fmt.Sscanf(value, "%d:", &kind)
	if err != nil || n != 1 {
		return ref, false
	}
	// Sscanf with ":" as a literal stops at the first colon; re-split by
	// hand since pubkey/dTag may themselves be empty or contain colons.
	rest := value
	for i, c := range value {
		if c == ':' {
			rest = value[i+1:]
			break
		}
	}
	pub, d := splitOnce(rest, ':')
	ref.Kind = kind
	ref.Pubkey = pub
	ref.DTag = d
	return ref, true
}

func splitOnce(s string, sep byte) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}
