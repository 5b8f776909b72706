package store

import (
	"time"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Demo conversation IDs, stable so the CLI and manual tests can address them.
const (
	DemoConversationAI     = "0192a3f0-0000-7000-8000-000000000001"
	DemoConversationHuman  = "0192a3f0-0000-7000-8000-000000000002"
	DemoConversationClosed = "0192a3f0-0000-7000-8000-000000000003"
)

// NewDemoStore returns a memory store with a few sample conversations for
// tenantID. Only used when demo mode is switched on explicitly.
func NewDemoStore(tenantID string, now time.Time) *MemoryStore {
	s := NewMemoryStore()
	convs, msgs := demoData(tenantID, now)
	s.Seed(convs, msgs)
	return s
}

func demoData(tenantID string, now time.Time) ([]model.Conversation, []model.Message) {
	at := func(minutesAgo int) time.Time {
		return now.Add(-time.Duration(minutesAgo) * time.Minute)
	}
	ptr := func(t time.Time) *time.Time { return &t }

	convs := []model.Conversation{
		{
			ID:            DemoConversationAI,
			TenantID:      tenantID,
			Contact:       model.Contact{Name: "Maria Silva", PhoneNumber: "+5511999990001"},
			AIEnabled:     true,
			Status:        model.StatusActive,
			UnreadCount:   1,
			Tags:          []string{"Lead"},
			Notes:         []model.Note{},
			CRM:           model.CRMFields{Score: 72, PipelineStage: "qualificacao", DealValue: 150000},
			AIReplyCount:  1,
			LastMessageAt: ptr(at(2)),
			CreatedAt:     at(30),
			UpdatedAt:     at(2),
		},
		{
			ID:                 DemoConversationHuman,
			TenantID:           tenantID,
			Contact:            model.Contact{Name: "João Santos", PhoneNumber: "+5511999990002"},
			AIEnabled:          false,
			Status:             model.StatusActive,
			AssignedOperatorID: "operator-demo",
			Favorite:           true,
			Tags:               []string{"VIP"},
			Notes:              []model.Note{},
			CRM:                model.CRMFields{Score: 91, PipelineStage: "negociacao", DealValue: 980000},
			HandoffReason:      "score_threshold",
			LastMessageAt:      ptr(at(15)),
			CreatedAt:          at(120),
			UpdatedAt:          at(15),
		},
		{
			ID:            DemoConversationClosed,
			TenantID:      tenantID,
			Contact:       model.Contact{Name: "Ana Costa", PhoneNumber: "+5511999990003"},
			AIEnabled:     false,
			Status:        model.StatusResolved,
			Tags:          []string{},
			Notes:         []model.Note{},
			LastMessageAt: ptr(at(60 * 24)),
			CreatedAt:     at(60 * 48),
			UpdatedAt:     at(60 * 24),
		},
	}

	msg := func(id, convID string, sender model.Sender, content string, minutesAgo int) model.Message {
		return model.Message{
			ID:             id,
			ConversationID: convID,
			TenantID:       tenantID,
			Sender:         sender,
			Content:        content,
			Status:         model.DeliveryDelivered,
			Reactions:      []string{},
			SentAt:         at(minutesAgo),
		}
	}

	msgs := []model.Message{
		msg("0192a3f0-0000-7000-8000-000000000101", DemoConversationAI, model.SenderClient, "Olá, gostaria de agendar uma consulta", 5),
		msg("0192a3f0-0000-7000-8000-000000000102", DemoConversationAI, model.SenderAI, "Olá Maria! Claro, qual o melhor dia para você?", 4),
		msg("0192a3f0-0000-7000-8000-000000000103", DemoConversationAI, model.SenderClient, "Terça de manhã", 2),
		msg("0192a3f0-0000-7000-8000-000000000201", DemoConversationHuman, model.SenderClient, "Preciso falar sobre o contrato", 20),
		msg("0192a3f0-0000-7000-8000-000000000202", DemoConversationHuman, model.SenderHumanOperator, "Oi João, estou verificando aqui", 15),
		msg("0192a3f0-0000-7000-8000-000000000301", DemoConversationClosed, model.SenderClient, "Obrigada pelo atendimento!", 60*24),
	}
	msgs[4].AuthorID = "operator-demo"

	return convs, msgs
}
