package api

import "testing"

func TestEnvelopeDecode(t *testing.T) {
	raw := []byte(`{"type":"offer","fromId":"web-1","toId":"dev-1","payload":{"sdp":"v=0"}}`)
	env := Unwrap[Envelope](raw)
	if env == nil {
		t.Fatal("frame did not parse")
	}
	if env.Type != MsgOffer || env.FromID != "web-1" || env.ToID != "dev-1" {
		t.Errorf("bad envelope: %+v", env)
	}
	if len(env.Payload) == 0 {
		t.Error("payload not captured")
	}
}

func TestUnwrapMalformed(t *testing.T) {
	if env := Unwrap[Envelope]([]byte(`{"type":`)); env != nil {
		t.Errorf("expected nil for malformed frame, got %+v", env)
	}
}

func TestFlattenRTCPayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		sdp  string
	}{
		{"flat", `{"type":"offer","sdp":"v=0 flat"}`, "v=0 flat"},
		{"nested", `{"parsedMessage":{"payload":{"type":"offer","sdp":"v=0 nested"}}}`, "v=0 nested"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			flat := FlattenRTCPayload([]byte(tc.in))
			sdp := Unwrap[SDP](flat)
			if sdp == nil || sdp.Sdp != tc.sdp {
				t.Errorf("got %+v, want sdp %q", sdp, tc.sdp)
			}
		})
	}
}

func TestBrowseResponseNeverNil(t *testing.T) {
	resp := NewBrowseResponse("dev-1", "sess-1", "/", nil)
	if resp.Entries == nil {
		t.Fatal("entries must serialize as [], not null")
	}
	data, err := Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	env := Unwrap[BrowseResponse](data)
	if env.Entries == nil || len(env.Entries) != 0 {
		t.Errorf("round trip lost empty entries: %+v", env)
	}
}

func TestStatusFrame(t *testing.T) {
	s := NewStatus("dev-1")
	if s.Type != MsgStatus || s.Status != StatusActive {
		t.Errorf("bad status frame: %+v", s)
	}
}
