package chat

import "testing"

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Inbound
		wantErr bool
	}{
		{"chat message", `{"type":"chat_message","content":"  hello "}`, Inbound{Type: TypeChatMessage, Content: "hello"}, false},
		{"missing type defaults to chat", `{"content":"hi"}`, Inbound{Type: TypeChatMessage, Content: "hi"}, false},
		{"typing", `{"type":"typing","is_typing":true}`, Inbound{Type: TypeTyping, IsTyping: true}, false},
		{"typing as string", `{"type":"typing","is_typing":"true"}`, Inbound{Type: TypeTyping, IsTyping: true}, false},
		{"read", `{"type":"read"}`, Inbound{Type: TypeRead}, false},
		{"unknown fields ignored", `{"type":"read","extra":1}`, Inbound{Type: TypeRead}, false},
		{"invalid json", `{nope`, Inbound{}, true},
		{"not an object", `[1,2]`, Inbound{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEvent_VisibleTo(t *testing.T) {
	typing := Event{Type: TypeTyping, UserID: 1}
	if typing.visibleTo(1) {
		t.Error("typist must not see own typing indicator")
	}
	if !typing.visibleTo(2) {
		t.Error("other participants see typing")
	}
	msg := Event{Type: TypeChatMessage, SenderID: 1}
	if !msg.visibleTo(1) {
		t.Error("sender sees own message")
	}
}
