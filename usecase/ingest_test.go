package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zapdesk/zapdesk/botengine"
	"github.com/zapdesk/zapdesk/core/database"
	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	domainIngest "github.com/zapdesk/zapdesk/domains/ingest"
	domainProtocol "github.com/zapdesk/zapdesk/domains/protocol"
	domainSend "github.com/zapdesk/zapdesk/domains/send"
	infraChatStorage "github.com/zapdesk/zapdesk/infrastructure/chatstorage"
)

type stubAI struct {
	mu    sync.Mutex
	calls int
}

func (s *stubAI) Chat(ctx context.Context, req botengine.ChatRequest) (botengine.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return botengine.ChatResponse{Text: "Certo! Pode me contar um pouco mais sobre o problema?"}, nil
}

func (s *stubAI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubProtocolUsecase struct{}

func (s *stubProtocolUsecase) Create(ctx context.Context, request domainProtocol.CreateRequest) (domainProtocol.CreateResult, error) {
	return domainProtocol.CreateResult{ProtocolID: "p1", ProtocolCode: "202608-0001-ZZZ"}, nil
}

type stubSendUsecase struct {
	mu   sync.Mutex
	sent []domainSend.TextRequest
}

func (s *stubSendUsecase) SendText(ctx context.Context, request domainSend.TextRequest) (domainSend.TextResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, request)
	return domainSend.TextResponse{MessageID: "out-1", Status: "sent"}, nil
}

type ingestFixture struct {
	repo    *infraChatStorage.GormRepository
	service domainIngest.IIngestUsecase
	ai      *stubAI
	sender  *stubSendUsecase
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewDatabaseWithURI("file:" + t.TempDir() + "/ingest.db")
	require.NoError(t, err)

	repo := infraChatStorage.NewStorageRepository(db)
	require.NoError(t, repo.Init(ctx))
	locker := infraChatStorage.NewGormLocker(db)
	require.NoError(t, locker.Init(ctx))

	ai := &stubAI{}
	sender := &stubSendUsecase{}
	engine := botengine.NewEngine(repo, locker, ai, &stubProtocolUsecase{}, sender, "ingest-test-owner")

	return &ingestFixture{
		repo:    repo,
		service: NewIngestService(repo, engine, nil),
		ai:      ai,
		sender:  sender,
	}
}

func textPayload(messageID, phone, text string) *domainIngest.WebhookPayload {
	return &domainIngest.WebhookPayload{
		Type:       "ReceivedCallback",
		MessageID:  messageID,
		Phone:      phone,
		SenderName: "Dona Clarice",
		Timestamp:  time.Now().Unix(),
		Text:       &domainIngest.TextContent{Message: text},
	}
}

func TestProcessMessageCreatesEverything(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	result, err := f.service.ProcessMessage(ctx, textPayload("wamid-1", "5581999998888", "gostaria de informações sobre o atendimento"), false)
	require.NoError(t, err)
	require.Equal(t, domainChatStorage.StoreCreated, result.Store)
	require.Empty(t, result.Skipped)
	require.True(t, result.ReplySent)
	require.Equal(t, 1, f.ai.callCount())

	contact, err := f.repo.GetContact(ctx, result.ContactID)
	require.NoError(t, err)
	require.Equal(t, "5581999998888", contact.Phone)
	require.Equal(t, "Dona Clarice", contact.Name)

	conv, err := f.repo.GetConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	require.Equal(t, "contact:"+contact.ID, conv.ThreadKey)
	require.False(t, conv.IsGroup)
}

func TestProcessMessageDuplicateDelivery(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	first, err := f.service.ProcessMessage(ctx, textPayload("wamid-dup", "5581999998888", "o portão está com defeito"), false)
	require.NoError(t, err)
	require.Empty(t, first.Skipped)

	second, err := f.service.ProcessMessage(ctx, textPayload("wamid-dup", "5581999998888", "o portão está com defeito"), false)
	require.NoError(t, err)
	require.Equal(t, "duplicate", second.Skipped)
	require.Equal(t, first.ConversationID, second.ConversationID)

	// The redelivery must not run the reply pipeline again.
	require.Equal(t, 1, f.ai.callCount())

	count, err := f.repo.CountMessages(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestProcessMessageBackfillSkipsReply(t *testing.T) {
	f := newIngestFixture(t)

	payload := textPayload("wamid-old", "5581999998888", "mensagem antiga importada")
	payload.IsBackfill = true

	result, err := f.service.ProcessMessage(context.Background(), payload, false)
	require.NoError(t, err)
	require.Equal(t, "backfill", result.Skipped)
	require.False(t, result.ReplySent)
	require.Zero(t, f.ai.callCount())
}

func TestProcessMessageFromMe(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	payload := textPayload("wamid-out", "5581999998888", "resposta enviada pelo celular do atendente")
	payload.FromMe = true

	result, err := f.service.ProcessMessage(ctx, payload, false)
	require.NoError(t, err)
	require.Equal(t, "from_me", result.Skipped)
	require.Zero(t, f.ai.callCount())

	msgs, err := f.repo.RecentMessages(ctx, result.ConversationID, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, domainChatStorage.DirectionOutbound, msgs[0].Direction)
}

func TestProcessMessageGroupIsStoredButNotAnswered(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	payload := textPayload("wamid-grp", "559198765432-1612345678@g.us", "pessoal, o portão da garagem travou")
	payload.IsGroup = true
	payload.SenderName = "Condomínio Solaris"

	result, err := f.service.ProcessMessage(ctx, payload, false)
	require.NoError(t, err)
	require.Equal(t, "group", result.Skipped)
	require.Zero(t, f.ai.callCount())

	conv, err := f.repo.GetConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	require.True(t, conv.IsGroup)
	require.Equal(t, "group:559198765432-1612345678@g.us", conv.ThreadKey)

	contact, err := f.repo.GetContact(ctx, result.ContactID)
	require.NoError(t, err)
	require.True(t, contact.IsGroup)
	require.Equal(t, "559198765432-1612345678@g.us", contact.GroupKey)
}

func TestProcessMessageDisguisedGroupPhone(t *testing.T) {
	f := newIngestFixture(t)

	// 21 digits, no country prefix: group data leaked into the phone field.
	payload := textPayload("wamid-dis", "919876543211612345678", "aviso geral")

	result, err := f.service.ProcessMessage(context.Background(), payload, false)
	require.NoError(t, err)
	require.Equal(t, "group", result.Skipped)
}

func TestProcessMessageMergesContacts(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	byPhone, err := f.service.ProcessMessage(ctx, textPayload("wamid-m1", "5581999991111", "primeira mensagem"), false)
	require.NoError(t, err)

	byLID := textPayload("wamid-m2", "", "segunda mensagem")
	byLID.SenderLID = "123456789012345@lid"
	second, err := f.service.ProcessMessage(ctx, byLID, false)
	require.NoError(t, err)
	require.NotEqual(t, byPhone.ContactID, second.ContactID)

	// One payload carrying both addresses proves they are the same person.
	proof := textPayload("wamid-m3", "5581999991111", "terceira mensagem")
	proof.SenderLID = "123456789012345@lid"
	merged, err := f.service.ProcessMessage(ctx, proof, false)
	require.NoError(t, err)

	survivor, err := f.repo.GetContact(ctx, merged.ContactID)
	require.NoError(t, err)
	require.Equal(t, "5581999991111", survivor.Phone)
	require.Equal(t, "123456789012345@lid", survivor.LID)

	count, err := f.repo.CountMessages(ctx, merged.ConversationID)
	require.NoError(t, err)
	require.Equal(t, int64(3), count, "all three messages end up in the surviving conversation")

	convs, err := f.repo.FindConversationsByContact(ctx, survivor.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
}

func TestProcessMessageNoIdentity(t *testing.T) {
	f := newIngestFixture(t)

	payload := &domainIngest.WebhookPayload{
		Type:       "ReceivedCallback",
		MessageID:  "wamid-x",
		SenderName: "Alguém",
		Text:       &domainIngest.TextContent{Message: "oi"},
	}
	_, err := f.service.ProcessMessage(context.Background(), payload, false)
	require.Error(t, err)
}

func TestProcessStatusAppliesDeliveryAndRead(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	stored, err := f.service.ProcessMessage(ctx, textPayload("wamid-st", "5581999998888", "mensagem para rastrear"), false)
	require.NoError(t, err)

	err = f.service.ProcessStatus(ctx, &domainIngest.WebhookPayload{
		Type:    "MessageStatusCallback",
		Status:  "DELIVERED",
		IDs:     []string{"wamid-st"},
		Momment: time.Now().UnixMilli(),
	})
	require.NoError(t, err)

	err = f.service.ProcessStatus(ctx, &domainIngest.WebhookPayload{
		Type:    "MessageStatusCallback",
		Status:  "READ",
		IDs:     []string{"wamid-st"},
		Momment: time.Now().UnixMilli(),
	})
	require.NoError(t, err)

	msgs, err := f.repo.RecentMessages(ctx, stored.ConversationID, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].DeliveredAt)
	require.NotNil(t, msgs[0].ReadAt)

	// Unknown ids are ignored without error.
	err = f.service.ProcessStatus(ctx, &domainIngest.WebhookPayload{
		Type:   "MessageStatusCallback",
		Status: "READ",
		IDs:    []string{"wamid-missing"},
	})
	require.NoError(t, err)
}
