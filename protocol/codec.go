package protocol

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

func EncodeRequest(r *Request) ([]byte, error) {
	b, err := json.Marshal(r)
	return b, errors.Wrap(err, "encode request")
}

// DecodeRequest never returns a nil request for a decode failure; the
// caller sequences the returned Request so that it is answered with
// ErrorUnknownRequest.
func DecodeRequest(b []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return &Request{}, errors.Wrap(err, "decode request")
	}
	return &r, nil
}

func EncodeResponse(r *Response) ([]byte, error) {
	b, err := json.Marshal(r)
	return b, errors.Wrap(err, "encode response")
}

func DecodeResponse(b []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &r, nil
}
