package types

// Event is the flat form of a committed module event. Amounts are base unit
// decimal strings and addresses are bech32.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
