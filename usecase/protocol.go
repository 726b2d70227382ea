package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zapdesk/zapdesk/config"
	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	domainProtocol "github.com/zapdesk/zapdesk/domains/protocol"
	"github.com/zapdesk/zapdesk/integrations/zapi"
	"github.com/zapdesk/zapdesk/pkg/timeutils"
	"github.com/zapdesk/zapdesk/validations"
)

// activeCondoMinConfidence gates reuse of the conversation's resolved
// condominium: below this the match was a shrug, not an answer.
const activeCondoMinConfidence = 0.70

const defaultSLAHours = 48

type serviceProtocol struct {
	protocolRepo    domainProtocol.IProtocolRepository
	chatStorageRepo domainChatStorage.IChatStorageRepository
	provider        *zapi.Client
}

func NewProtocolService(
	protocolRepo domainProtocol.IProtocolRepository,
	chatStorageRepo domainChatStorage.IChatStorageRepository,
	provider *zapi.Client,
) domainProtocol.IProtocolUsecase {
	return &serviceProtocol{
		protocolRepo:    protocolRepo,
		chatStorageRepo: chatStorageRepo,
		provider:        provider,
	}
}

// Create registers a protocol. Within the idempotency window a second
// call for the same conversation returns the existing record instead of
// opening a twin ticket.
func (service *serviceProtocol) Create(ctx context.Context, request domainProtocol.CreateRequest) (domainProtocol.CreateResult, error) {
	if err := validations.ValidateCreateProtocol(ctx, request); err != nil {
		return domainProtocol.CreateResult{}, err
	}

	conv, err := service.chatStorageRepo.GetConversation(ctx, request.ConversationID)
	if err != nil {
		return domainProtocol.CreateResult{}, err
	}

	if !request.ForceNew {
		recent, err := service.protocolRepo.FindRecentByConversation(ctx, conv.ID, config.RecentProtocolWindow)
		if err != nil {
			return domainProtocol.CreateResult{}, err
		}
		if recent != nil {
			logrus.Infof("[PROTOCOL] conversation %s already has protocol %s within the window", conv.ID, recent.Code)
			return domainProtocol.CreateResult{
				ProtocolID:     recent.ID,
				ProtocolCode:   recent.Code,
				AlreadyExisted: true,
			}, nil
		}
	}

	condoID, condoName, err := service.resolveCondominium(ctx, request, conv)
	if err != nil {
		return domainProtocol.CreateResult{}, err
	}

	category := request.Category
	priority := request.Priority
	slaHours := defaultSLAHours
	templateID := ""
	var itemTitles []string

	if tpl, err := service.matchTemplate(ctx, request.Summary); err != nil {
		logrus.Warnf("[PROTOCOL] template lookup failed: %v", err)
	} else if tpl != nil {
		templateID = tpl.ID
		itemTitles = tpl.WorkItems
		if category == "" {
			category = tpl.Category
		}
		if priority == "" {
			priority = tpl.Priority
		}
		if tpl.SLAHours > 0 {
			slaHours = tpl.SLAHours
		}
	}
	if priority == "" {
		priority = "normal"
	}

	if requiresUnit(category) && !conv.IsGroup && request.Apartment == "" {
		return domainProtocol.CreateResult{}, domainProtocol.ErrMissingUnit
	}

	code, err := service.nextCode(ctx)
	if err != nil {
		return domainProtocol.CreateResult{}, err
	}

	now := time.Now().UTC()
	due := timeutils.AddBusinessHours(now, slaHours)

	record := &domainProtocol.Protocol{
		ID:               uuid.NewString(),
		Code:             code,
		ConversationID:   conv.ID,
		ContactID:        request.ContactID,
		CondominiumID:    condoID,
		CondominiumName:  condoName,
		Summary:          strings.TrimSpace(request.Summary),
		Category:         category,
		Priority:         priority,
		Apartment:        request.Apartment,
		RequesterName:    request.RequesterName,
		RequesterRole:    request.RequesterRole,
		Status:           "open",
		CreatedByType:    request.CreatedByType,
		CreatedByAgentID: request.CreatedByAgentID,
		SourceMessageID:  request.SourceMessageID,
		TemplateID:       templateID,
		SLADueAt:         &due,
	}

	items := make([]*domainProtocol.WorkItem, 0, len(itemTitles))
	for i, title := range itemTitles {
		items = append(items, &domainProtocol.WorkItem{
			ID:         uuid.NewString(),
			ProtocolID: record.ID,
			Title:      title,
			Status:     "pending",
			Position:   i,
		})
	}

	if err := service.protocolRepo.CreateProtocol(ctx, record, items); err != nil {
		return domainProtocol.CreateResult{}, err
	}

	conv.ProtocolCode = code
	conv.LastProtocolAt = &now
	if condoID != "" && conv.ActiveCondominiumID == "" {
		conv.ActiveCondominiumID = condoID
		conv.ActiveCondominiumName = condoName
		conv.ActiveCondominiumConfidence = 1.0
	}
	if request.Apartment != "" {
		conv.ActiveUnit = request.Apartment
	}
	if err := service.chatStorageRepo.UpdateConversation(ctx, conv); err != nil {
		logrus.Errorf("[PROTOCOL] conversation bookkeeping failed for %s: %v", conv.ID, err)
	}

	logrus.Infof("[PROTOCOL] created %s for conversation %s (category=%q priority=%s)", code, conv.ID, category, priority)

	result := domainProtocol.CreateResult{
		ProtocolID:   record.ID,
		ProtocolCode: code,
	}
	service.notify(ctx, request, record, &result)
	return result, nil
}

// resolveCondominium walks the chain: explicit id, the conversation's
// confidently resolved building, then a name lookup exact-first. A raw
// unresolved name is allowed; having nothing at all is not.
func (service *serviceProtocol) resolveCondominium(ctx context.Context, request domainProtocol.CreateRequest, conv *domainChatStorage.Conversation) (string, string, error) {
	if request.CondominiumID != "" {
		condo, err := service.chatStorageRepo.GetCondominium(ctx, request.CondominiumID)
		if err != nil {
			return "", "", err
		}
		return condo.ID, condo.Name, nil
	}

	if conv.ActiveCondominiumID != "" && conv.ActiveCondominiumConfidence >= activeCondoMinConfidence {
		return conv.ActiveCondominiumID, conv.ActiveCondominiumName, nil
	}

	name := strings.TrimSpace(request.CondominiumName)
	if name == "" {
		name = strings.TrimSpace(conv.ActiveCondominiumName)
	}
	if name == "" {
		return "", "", domainProtocol.ErrMissingCondominium
	}

	matches, err := service.chatStorageRepo.FindCondominiumsByName(ctx, name)
	if err != nil {
		return "", "", err
	}
	for _, m := range matches {
		if strings.EqualFold(strings.TrimSpace(m.Name), name) {
			return m.ID, m.Name, nil
		}
	}
	switch len(matches) {
	case 0:
		// Free-text location: the ticket carries the name verbatim.
		return "", name, nil
	case 1:
		return matches[0].ID, matches[0].Name, nil
	default:
		return "", "", domainProtocol.ErrAmbiguousCondominium
	}
}

func (service *serviceProtocol) matchTemplate(ctx context.Context, summary string) (*domainProtocol.Template, error) {
	templates, err := service.protocolRepo.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	folded := strings.ToLower(summary)
	for _, tpl := range templates {
		for _, kw := range tpl.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(folded, kw) {
				return tpl, nil
			}
		}
	}
	return nil, nil
}

// nextCode builds YYYYMM-<seq>-<suffix> in the desk's local timezone.
// The monthly sequence restarts every month; the random suffix keeps
// codes unguessable.
func (service *serviceProtocol) nextCode(ctx context.Context) (string, error) {
	prefix := timeutils.LocalNow(config.AITimezone).Format("200601")

	count, err := service.protocolRepo.CountWithCodePrefix(ctx, prefix)
	if err != nil {
		return "", err
	}

	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:3])
	return fmt.Sprintf("%s-%04d-%s", prefix, count+1, suffix), nil
}

// requiresUnit marks the categories whose equipment lives inside a
// specific apartment rather than in a common area.
func requiresUnit(category string) bool {
	switch category {
	case "Interfone", "Sistema de TV Coletiva":
		return true
	}
	return false
}

// notify pushes optional provider notifications. Failures never undo
// the created protocol; they only clear the result flags.
func (service *serviceProtocol) notify(ctx context.Context, request domainProtocol.CreateRequest, record *domainProtocol.Protocol, result *domainProtocol.CreateResult) {
	if request.NotifyGroup && config.NotifyGroupID != "" {
		text := fmt.Sprintf("Novo protocolo *%s*\nCondomínio: %s\nResumo: %s\nPrioridade: %s",
			record.Code, record.CondominiumName, record.Summary, record.Priority)
		if _, err := service.provider.SendText(ctx, config.NotifyGroupID, text); err != nil {
			logrus.Warnf("[PROTOCOL] group notification failed for %s: %v", record.Code, err)
		} else {
			result.GroupNotified = true
		}
	}

	if request.NotifyClient {
		conv, err := service.chatStorageRepo.GetConversation(ctx, record.ConversationID)
		if err == nil && !conv.IsGroup {
			if contact, err := service.chatStorageRepo.GetContact(ctx, conv.ContactID); err == nil && contact.Phone != "" {
				text := fmt.Sprintf("Seu atendimento foi registrado com o protocolo *%s*.", record.Code)
				if _, err := service.provider.SendText(ctx, contact.Phone, text); err != nil {
					logrus.Warnf("[PROTOCOL] client notification failed for %s: %v", record.Code, err)
				} else {
					result.ClientNotified = true
				}
			}
		}
	}
}
