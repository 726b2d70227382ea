package usecase

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/zapdesk/zapdesk/config"
	"github.com/zapdesk/zapdesk/core/database"
	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	domainProtocol "github.com/zapdesk/zapdesk/domains/protocol"
	infraChatStorage "github.com/zapdesk/zapdesk/infrastructure/chatstorage"
	infraProtocol "github.com/zapdesk/zapdesk/infrastructure/protocol"
	"github.com/zapdesk/zapdesk/integrations/zapi"
	"github.com/zapdesk/zapdesk/pkg/waid"
)

type protocolFixture struct {
	chatRepo  *infraChatStorage.GormRepository
	protoRepo *infraProtocol.GormRepository
	service   domainProtocol.IProtocolUsecase
	conv      *domainChatStorage.Conversation
}

func newProtocolFixture(t *testing.T) *protocolFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewDatabaseWithURI("file:" + t.TempDir() + "/protocol.db")
	require.NoError(t, err)

	chatRepo := infraChatStorage.NewStorageRepository(db)
	require.NoError(t, chatRepo.Init(ctx))
	protoRepo := infraProtocol.NewGormRepository(db)
	require.NoError(t, protoRepo.Init(ctx))

	contact := &domainChatStorage.Contact{ID: uuid.NewString(), Name: "Cliente", Phone: "5581999990003"}
	require.NoError(t, chatRepo.CreateContact(ctx, contact))
	conv := &domainChatStorage.Conversation{
		ID:        uuid.NewString(),
		ThreadKey: waid.ContactThreadKey(contact.ID),
		ContactID: contact.ID,
		Status:    "open",
		AIMode:    domainChatStorage.AIModeAuto,
	}
	require.NoError(t, chatRepo.CreateConversation(ctx, conv))

	service := NewProtocolService(protoRepo, chatRepo, zapi.NewClient("", ""))
	return &protocolFixture{chatRepo: chatRepo, protoRepo: protoRepo, service: service, conv: conv}
}

func (f *protocolFixture) seedCondominium(t *testing.T, id, name string) {
	t.Helper()
	err := f.chatRepo.DB().Exec(`INSERT INTO condominiums (id, name) VALUES (?, ?)`, id, name).Error
	require.NoError(t, err)
}

var reProtocolCode = regexp.MustCompile(`^\d{6}-\d{4}-[A-Z0-9]{3}$`)

func TestProtocolCodeFormat(t *testing.T) {
	f := newProtocolFixture(t)

	result, err := f.service.Create(context.Background(), domainProtocol.CreateRequest{
		ConversationID:  f.conv.ID,
		CondominiumName: "Vila das Palmeiras",
		Summary:         "portão da garagem travado desde cedo",
	})
	require.NoError(t, err)
	require.False(t, result.AlreadyExisted)
	require.Regexp(t, reProtocolCode, result.ProtocolCode)
	require.Contains(t, result.ProtocolCode, "-0001-", "first protocol of the month starts the sequence")
}

func TestProtocolIdempotencyWindow(t *testing.T) {
	f := newProtocolFixture(t)
	ctx := context.Background()

	req := domainProtocol.CreateRequest{
		ConversationID:  f.conv.ID,
		CondominiumName: "Vila das Palmeiras",
		Summary:         "portão da garagem travado desde cedo",
	}
	first, err := f.service.Create(ctx, req)
	require.NoError(t, err)

	second, err := f.service.Create(ctx, req)
	require.NoError(t, err)
	require.True(t, second.AlreadyExisted)
	require.Equal(t, first.ProtocolCode, second.ProtocolCode)

	// An explicit new-subject marker bypasses the window.
	req.ForceNew = true
	third, err := f.service.Create(ctx, req)
	require.NoError(t, err)
	require.False(t, third.AlreadyExisted)
	require.NotEqual(t, first.ProtocolCode, third.ProtocolCode)
}

func TestProtocolMissingCondominium(t *testing.T) {
	f := newProtocolFixture(t)

	_, err := f.service.Create(context.Background(), domainProtocol.CreateRequest{
		ConversationID: f.conv.ID,
		Summary:        "interfone da portaria está mudo",
	})
	require.ErrorIs(t, err, domainProtocol.ErrMissingCondominium)
}

func TestProtocolAmbiguousCondominium(t *testing.T) {
	f := newProtocolFixture(t)
	f.seedCondominium(t, "c1", "Solar das Águas")
	f.seedCondominium(t, "c2", "Solar do Atlântico")

	_, err := f.service.Create(context.Background(), domainProtocol.CreateRequest{
		ConversationID:  f.conv.ID,
		CondominiumName: "solar",
		Summary:         "portão da garagem com defeito",
	})
	require.ErrorIs(t, err, domainProtocol.ErrAmbiguousCondominium)
}

func TestProtocolExactNameBeatsContains(t *testing.T) {
	f := newProtocolFixture(t)
	f.seedCondominium(t, "c1", "Solaris")
	f.seedCondominium(t, "c2", "Solaris Park")

	result, err := f.service.Create(context.Background(), domainProtocol.CreateRequest{
		ConversationID:  f.conv.ID,
		CondominiumName: "solaris",
		Summary:         "portão da garagem com defeito",
	})
	require.NoError(t, err)

	stored, err := f.protoRepo.FindRecentByConversation(context.Background(), f.conv.ID, config.RecentProtocolWindow)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "c1", stored.CondominiumID)
	require.Equal(t, result.ProtocolCode, stored.Code)
}

func TestProtocolMissingUnitForInUnitCategory(t *testing.T) {
	f := newProtocolFixture(t)

	_, err := f.service.Create(context.Background(), domainProtocol.CreateRequest{
		ConversationID:  f.conv.ID,
		CondominiumName: "Vila das Palmeiras",
		Summary:         "interfone sem áudio",
		Category:        "Interfone",
	})
	require.ErrorIs(t, err, domainProtocol.ErrMissingUnit)

	// With the unit supplied the same request goes through.
	result, err := f.service.Create(context.Background(), domainProtocol.CreateRequest{
		ConversationID:  f.conv.ID,
		CondominiumName: "Vila das Palmeiras",
		Summary:         "interfone sem áudio",
		Category:        "Interfone",
		Apartment:       "302",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.ProtocolCode)
}

func TestProtocolTemplatePreFillsTicket(t *testing.T) {
	f := newProtocolFixture(t)
	err := f.chatRepo.DB().Exec(
		`INSERT INTO protocol_templates (id, name, keywords, category, priority, work_items, sla_hours, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), "Interfone padrão", "interfone,porteiro", "Interfone", "critical",
		"Testar aparelho da unidade\nVerificar central da portaria", 24, true,
	).Error
	require.NoError(t, err)

	_, err = f.service.Create(context.Background(), domainProtocol.CreateRequest{
		ConversationID:  f.conv.ID,
		CondominiumName: "Vila das Palmeiras",
		Summary:         "o interfone do 302 parou de chamar",
		Apartment:       "302",
	})
	require.NoError(t, err)

	stored, err := f.protoRepo.FindRecentByConversation(context.Background(), f.conv.ID, config.RecentProtocolWindow)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "Interfone", stored.Category)
	require.Equal(t, "critical", stored.Priority)
	require.NotEmpty(t, stored.TemplateID)
	require.NotNil(t, stored.SLADueAt)

	var itemCount int64
	require.NoError(t, f.chatRepo.DB().Table("protocol_work_items").Where("protocol_id = ?", stored.ID).Count(&itemCount).Error)
	require.Equal(t, int64(2), itemCount)
}

func TestProtocolConversationBookkeeping(t *testing.T) {
	f := newProtocolFixture(t)
	f.seedCondominium(t, "c1", "Residencial Solaris")
	ctx := context.Background()

	result, err := f.service.Create(ctx, domainProtocol.CreateRequest{
		ConversationID:  f.conv.ID,
		CondominiumName: "Residencial Solaris",
		Summary:         "portão da garagem travado",
		Apartment:       "104",
	})
	require.NoError(t, err)

	conv, err := f.chatRepo.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	require.Equal(t, result.ProtocolCode, conv.ProtocolCode)
	require.NotNil(t, conv.LastProtocolAt)
	require.Equal(t, "c1", conv.ActiveCondominiumID)
	require.Equal(t, "104", conv.ActiveUnit)
}

func TestProtocolValidation(t *testing.T) {
	f := newProtocolFixture(t)

	_, err := f.service.Create(context.Background(), domainProtocol.CreateRequest{
		ConversationID: f.conv.ID,
	})
	require.Error(t, err, "an empty summary must not pass validation")

	_, err = f.service.Create(context.Background(), domainProtocol.CreateRequest{
		ConversationID:  f.conv.ID,
		CondominiumName: "Solaris",
		Summary:         "portão travado",
		Priority:        "altíssima",
	})
	require.Error(t, err, "unknown priority must not pass validation")
}
