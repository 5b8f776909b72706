package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

func TestSubjects(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"message", MessageSubject("t1", "c1", model.SenderHumanOperator), "inbox.t1.c1.msg.human_operator"},
		{"event", EventSubject("t1", "c1", model.EventTypeHumanRequested), "inbox.t1.c1.event.human_requested"},
		{"filter", EventFilter("t1", "c1"), "inbox.t1.c1.event.>"},
		{"unsafe tokens", EventSubject("acme.br", "a*b>", model.EventTypeResolved), "inbox.acme_br.a_b_.event.resolved"},
		{"empty tenant", MessageSubject("", "c1", model.SenderAI), "inbox._.c1.msg.ai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
