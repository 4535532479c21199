package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// Version is the protocol version this daemon speaks. Script plugins declare
// theirs in the manifest; a mismatch is rejected at discovery time.
const Version = 1

// EncodeRequest writes req to w as a single JSON line.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return nil
}

// DecodeResponse reads one Response from r. Decoding is strict: unknown
// fields are an error, so a plugin emitting garbage fails loudly instead of
// being silently misread.
func DecodeResponse(r io.Reader) (*Response, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *Response) validate() error {
	switch r.Status {
	case StatusOK:
	case StatusError:
		if r.Error == "" {
			return fmt.Errorf("response has status=error but no error message")
		}
	case "":
		return fmt.Errorf("response missing required field: status")
	default:
		return fmt.Errorf("invalid status value: %q (must be %q or %q)",
			r.Status, StatusOK, StatusError)
	}
	return nil
}
