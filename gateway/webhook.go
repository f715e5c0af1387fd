package gateway

import (
	"bytes"
	"errors"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const EventTransactionUpdated = "transaction.updated"

var validate = validator.New()

// Signature is the checksum block the gateway attaches to every event. The
// properties are dot-paths into the event's data object.
type Signature struct {
	Properties []string `json:"properties"`
	Checksum   string   `json:"checksum"`
}

// Event is a decoded webhook delivery. Event types other than
// transaction.updated are valid deliveries that carry nothing to reconcile.
type Event struct {
	Type      string
	Timestamp string
	Signature *Signature

	rawData json.RawMessage
	data    map[string]interface{}
}

type envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp json.Number     `json:"timestamp"`
	Signature *Signature      `json:"signature"`
}

// ParseEvent decodes a raw webhook body. Numbers are kept verbatim so the
// checksum is computed over the exact digits the gateway sent.
func ParseEvent(body []byte) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	// the whole body is hashed for dedupe, so nothing may follow the event
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after event", ErrMalformedPayload)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: event type missing", ErrMalformedPayload)
	}

	ev := &Event{
		Type:      env.Event,
		Timestamp: env.Timestamp.String(),
		Signature: env.Signature,
		rawData:   env.Data,
	}

	if len(env.Data) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		dataDec := json.NewDecoder(bytes.NewReader(env.Data))
		dataDec.UseNumber()
		if err := dataDec.Decode(&ev.data); err != nil {
			return nil, fmt.Errorf("%w: data is not an object: %v", ErrMalformedPayload, err)
		}
	}
	return ev, nil
}

// IsTransactionEvent reports whether the event carries a transaction update.
func (e *Event) IsTransactionEvent() bool {
	return e.Type == EventTransactionUpdated
}

// VerifySignature recomputes the checksum from the properties the event
// lists, the timestamp and the shared events secret. Anything missing fails
// closed with ErrInvalidSignature.
func (e *Event) VerifySignature(secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: events secret not configured", ErrInvalidSignature)
	}
	if e.Signature == nil || len(e.Signature.Properties) == 0 || e.Signature.Checksum == "" {
		return fmt.Errorf("%w: signature block missing", ErrInvalidSignature)
	}
	if e.Timestamp == "" {
		return fmt.Errorf("%w: timestamp missing", ErrInvalidSignature)
	}

	values := make([]string, 0, len(e.Signature.Properties))
	for _, prop := range e.Signature.Properties {
		v, err := resolvePath(e.data, prop)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		values = append(values, v)
	}

	expected := ComputeChecksum(values, e.Timestamp, secret)
	provided := strings.ToUpper(strings.TrimSpace(e.Signature.Checksum))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidSignature)
	}
	return nil
}

// Transaction extracts and validates the embedded transaction object.
func (e *Event) Transaction() (*Transaction, error) {
	if len(e.rawData) == 0 {
		return nil, ErrMissingTransaction
	}

	var body struct {
		Transaction *Transaction `json:"transaction"`
	}
	if err := json.Unmarshal(e.rawData, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if body.Transaction == nil {
		return nil, ErrMissingTransaction
	}
	if err := validate.Struct(body.Transaction); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingTransaction, err)
	}
	return body.Transaction, nil
}

// ComputeChecksum returns the uppercase hex SHA-256 of the property values,
// timestamp and secret concatenated in order.
func ComputeChecksum(values []string, timestamp, secret string) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(v)
	}
	b.WriteString(timestamp)
	b.WriteString(secret)
	sum := sha256.Sum256([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func resolvePath(root map[string]interface{}, path string) (string, error) {
	if root == nil {
		return "", fmt.Errorf("property %q: event has no data", path)
	}

	var cur interface{} = root
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("property %q: %q is not inside an object", path, part)
		}
		cur, ok = obj[part]
		if !ok {
			return "", fmt.Errorf("property %q not found", path)
		}
	}

	switch v := cur.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("property %q is not a scalar value", path)
	}
}
