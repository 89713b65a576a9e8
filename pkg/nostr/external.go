package nostr

import "context"

// Signer signs outbound events. Cryptographic signing is explicitly out of
// scope for the conversation engine (spec §1); callers supply a concrete
// implementation (e.g. a NIP-07 browser signer, a local key, or a remote
// signer bunker).
type Signer interface {
	// Pubkey returns the 64-char lowercase hex pubkey this signer signs for.
	Pubkey(ctx context.Context) (string, error)

	// Sign computes ID and Sig in place on a fully-populated event
	// (Pubkey, Kind, CreatedAt, Content, Tags must already be set).
	Sign(ctx context.Context, event *Event) error
}

// RelayClient is the relay transport: fetch/subscribe/publish of signed
// events. The transport itself is out of scope (spec §1); the engine only
// depends on this narrow interface to fetch enrichment data and publish
// outbound events.
type RelayClient interface {
	// Publish broadcasts a signed event to the relay network.
	Publish(ctx context.Context, event *Event) error

	// FetchByID retrieves a single event by full id. Returns (nil, nil)
	// if not found.
	FetchByID(ctx context.Context, id string) (*Event, error)

	// FetchAddressable retrieves the latest event matching an addressable
	// coordinate (kind:pubkey:dTag), used for best-effort
	// referenced-article enrichment.
	FetchAddressable(ctx context.Context, ref AddressableRef) (*Event, error)
}
