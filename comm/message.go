package comm

import (
	"fmt"
	"strings"

	"encoding/base64"

	"github.com/aneangel/CSE138-Assignment3/store"
	"github.com/aneangel/CSE138-Assignment3/vclock"
)

// Constants

// Operation names carried in the payload of a sync message.
const (
	OpWrite    = "write"
	OpView     = "view"
	OpSnapshot = "snapshot"
)

// View change actions.
const (
	ViewAdd    = "add"
	ViewRemove = "remove"
)

// Structs

// Msg is the envelope of one synchronization message between two
// replicas. It consists of the originating replica's address, a
// vector clock and an operation-specific payload.
type Msg struct {
	Sender  string
	VClock  vclock.VClock
	Payload string
}

// WriteMsg replicates one accepted write or delete. A nil Value
// transports a tombstone. The resulting clock of the accepted
// write travels in the envelope.
type WriteMsg struct {
	Key   string
	Value []byte
}

// ViewMsg replicates one membership event. NoRebroadcast marks
// fan-out copies that receivers must not propagate again.
type ViewMsg struct {
	Action        string
	Addr          string
	NoRebroadcast bool
}

// SnapshotMsg transports the full store contents of a replica to
// a peer that is being brought back up to date. The replica-wide
// aggregate clock travels in the envelope.
type SnapshotMsg struct {
	Entries map[string]store.Entry
}

// Functions

// InitMsg returns a fresh Msg variable.
func InitMsg() *Msg {

	return &Msg{
		VClock: vclock.InitVClock(),
	}
}

// String marshals given Msg m into its string representation so
// that it can be sent out onto the network connection.
func (m *Msg) String() string {
	return fmt.Sprintf("%s|%s|%s", m.Sender, m.VClock.String(), m.Payload)
}

// Parse takes in a received line representing a message and
// parses it back into envelope struct form.
func Parse(raw string) (*Msg, error) {

	// Remove attached newline symbols.
	raw = strings.TrimRight(raw, "\r\n")

	// Split message at pipe symbol at maximum two times.
	parts := strings.SplitN(raw, "|", 3)

	// Messages with less than three parts are discarded.
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid sync message")
	}

	if len(parts[0]) < 1 {
		return nil, fmt.Errorf("invalid sync message because sender address is missing")
	}

	vc, err := vclock.Parse(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid vector clock in sync message: %v", err)
	}

	return &Msg{
		Sender:  parts[0],
		VClock:  vc,
		Payload: parts[2],
	}, nil
}

// ParseOp splits the payload of an envelope into the operation
// name and the operation-specific remainder.
func ParseOp(payload string) (string, string, error) {

	parts := strings.SplitN(payload, "|", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("payload invalid because operation part is missing")
	}

	return parts[0], parts[1], nil
}

// marshalValue encodes a value-or-tombstone into its flagged
// base64 form.
func marshalValue(value []byte) string {

	if value == nil {
		return "t;"
	}

	return fmt.Sprintf("v;%s", base64.StdEncoding.EncodeToString(value))
}

// parseValue decodes the flagged base64 form produced by
// marshalValue.
func parseValue(flag string, encoded string) ([]byte, error) {

	switch flag {
	case "t":
		return nil, nil
	case "v":
		value, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 value failed: %v", err)
		}
		return value, nil
	default:
		return nil, fmt.Errorf("unknown value flag '%s'", flag)
	}
}

// MarshalWrite composes the payload of a replicate-write message.
func MarshalWrite(wr *WriteMsg) string {

	encKey := base64.StdEncoding.EncodeToString([]byte(wr.Key))

	return fmt.Sprintf("%s|%s;%s", OpWrite, encKey, marshalValue(wr.Value))
}

// ParseWrite takes in the remainder of a write payload and parses
// it into structured form.
func ParseWrite(payload string) (*WriteMsg, error) {

	// Split element at delimiter (semicolon).
	element := strings.Split(payload, ";")
	if len(element) != 3 {
		return nil, fmt.Errorf("invalid write message: incorrect amount of semicola")
	}

	decKey, err := base64.StdEncoding.DecodeString(element[0])
	if err != nil {
		return nil, fmt.Errorf("decoding base64 key of write message failed: %v", err)
	}

	if len(decKey) < 1 {
		return nil, fmt.Errorf("invalid write message: empty key")
	}

	value, err := parseValue(element[1], element[2])
	if err != nil {
		return nil, err
	}

	return &WriteMsg{
		Key:   string(decKey),
		Value: value,
	}, nil
}

// MarshalView composes the payload of a view change message.
func MarshalView(vw *ViewMsg) string {

	flag := "0"
	if vw.NoRebroadcast {
		flag = "1"
	}

	return fmt.Sprintf("%s|%s;%s;%s", OpView, vw.Action, vw.Addr, flag)
}

// ParseView takes in the remainder of a view change payload and
// parses it into structured form.
func ParseView(payload string) (*ViewMsg, error) {

	element := strings.Split(payload, ";")
	if len(element) != 3 {
		return nil, fmt.Errorf("invalid view message: incorrect amount of semicola")
	}

	if element[0] != ViewAdd && element[0] != ViewRemove {
		return nil, fmt.Errorf("invalid view message: unknown action '%s'", element[0])
	}

	if len(element[1]) < 1 {
		return nil, fmt.Errorf("invalid view message: empty replica address")
	}

	var noRebroadcast bool
	switch element[2] {
	case "0":
		noRebroadcast = false
	case "1":
		noRebroadcast = true
	default:
		return nil, fmt.Errorf("invalid view message: malformed rebroadcast flag '%s'", element[2])
	}

	return &ViewMsg{
		Action:        element[0],
		Addr:          element[1],
		NoRebroadcast: noRebroadcast,
	}, nil
}

// MarshalSnapshot composes the payload of a recovery snapshot
// message. Entries are space-separated, fields within one entry
// comma-separated, so that the per-entry vector clocks keep their
// own delimiters.
func MarshalSnapshot(sn *SnapshotMsg) string {

	entries := make([]string, 0, len(sn.Entries))

	for key, entry := range sn.Entries {

		encKey := base64.StdEncoding.EncodeToString([]byte(key))

		flagged := marshalValue(entry.Value)
		flagged = strings.Replace(flagged, ";", ",", 1)

		entries = append(entries, fmt.Sprintf("%s,%s,%s", encKey, flagged, entry.Clock.String()))
	}

	return fmt.Sprintf("%s|%s", OpSnapshot, strings.Join(entries, " "))
}

// ParseSnapshot takes in the remainder of a snapshot payload and
// parses it into structured form. An empty remainder transports
// an empty store.
func ParseSnapshot(payload string) (*SnapshotMsg, error) {

	sn := &SnapshotMsg{
		Entries: make(map[string]store.Entry),
	}

	if payload == "" {
		return sn, nil
	}

	for _, raw := range strings.Split(payload, " ") {

		element := strings.Split(raw, ",")
		if len(element) != 4 {
			return nil, fmt.Errorf("invalid snapshot entry: incorrect amount of commas")
		}

		decKey, err := base64.StdEncoding.DecodeString(element[0])
		if err != nil {
			return nil, fmt.Errorf("decoding base64 key of snapshot entry failed: %v", err)
		}

		value, err := parseValue(element[1], element[2])
		if err != nil {
			return nil, err
		}

		clock, err := vclock.Parse(element[3])
		if err != nil {
			return nil, fmt.Errorf("invalid vector clock in snapshot entry: %v", err)
		}

		sn.Entries[string(decKey)] = store.Entry{
			Value: value,
			Clock: clock,
		}
	}

	return sn, nil
}
