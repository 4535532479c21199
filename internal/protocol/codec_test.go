package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name: "valid query request",
			req: &Request{
				Protocol:  1,
				Command:   CommandQuery,
				Query:     "open notes",
				Tokens:    []string{"open", "notes"},
				HasPrefix: true,
			},
			wantErr: false,
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"protocol":1`) {
					t.Error("missing protocol field")
				}
				if !strings.Contains(output, `"command":"query"`) {
					t.Error("missing command field")
				}
				if !strings.Contains(output, `"tokens":["open","notes"]`) {
					t.Error("missing tokens field")
				}
				if !strings.Contains(output, `"has_prefix":true`) {
					t.Error("missing has_prefix field")
				}
			},
		},
		{
			name: "unsupported protocol version",
			req: &Request{
				Protocol: 2,
				Command:  CommandQuery,
			},
			wantErr: true,
		},
		{
			name: "handle request with data",
			req: &Request{
				Protocol: 1,
				Command:  CommandHandle,
				ActionID: "open",
				Data:     map[string]any{"path": "/tmp/x"},
			},
			wantErr: false,
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"command":"handle"`) {
					t.Error("missing command field")
				}
				if !strings.Contains(output, `"action_id":"open"`) {
					t.Error("missing action_id field")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := EncodeRequest(&buf, tt.req)

			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, buf.String())
			}
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, resp *Response)
	}{
		{
			name:  "ok with entries",
			input: `{"status":"ok","entries":[{"name":"notes.txt","perfect_match":true}]}`,
			checkFn: func(t *testing.T, resp *Response) {
				if len(resp.Entries) != 1 {
					t.Fatalf("entries = %d, want 1", len(resp.Entries))
				}
				if !resp.Entries[0].PerfectMatch {
					t.Error("perfect_match not decoded")
				}
			},
		},
		{
			name:  "error with message",
			input: `{"status":"error","error":"script crashed"}`,
			checkFn: func(t *testing.T, resp *Response) {
				if resp.Error != "script crashed" {
					t.Errorf("error = %q", resp.Error)
				}
			},
		},
		{
			name:    "missing status",
			input:   `{"entries":[]}`,
			wantErr: true,
		},
		{
			name:    "invalid status",
			input:   `{"status":"maybe"}`,
			wantErr: true,
		},
		{
			name:    "error without message",
			input:   `{"status":"error"}`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			input:   `{"status":"ok","bogus":1}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `hello`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, resp)
			}
		})
	}
}
