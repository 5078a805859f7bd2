package types

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// HashAction hides action names at public boundaries and bounds lock key length.
func HashAction(action string) string {
	sum := md5.Sum([]byte(action))
	return hex.EncodeToString(sum[:])
}

// HashArgs returns the instance hash of an argument list. A nil list hashes
// like an empty one.
func HashArgs(args []any) (string, error) {
	payload, err := EncodeArgs(args)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:]), nil
}

func EncodeArgs(args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal args")
	}
	return payload, nil
}

// DecodeArgs keeps numbers as json.Number so decoded args hash and encode
// exactly like the ones that were stored.
func DecodeArgs(payload []byte) ([]any, error) {
	args := []any{}
	if len(payload) == 0 {
		return args, nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal args")
	}
	if dec.More() {
		return nil, errors.New("failed to unmarshal args: trailing data")
	}
	return args, nil
}
