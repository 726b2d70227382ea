package botengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zapdesk/zapdesk/config"
	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	domainProtocol "github.com/zapdesk/zapdesk/domains/protocol"
	domainSend "github.com/zapdesk/zapdesk/domains/send"
	"github.com/zapdesk/zapdesk/pkg/waid"
)

// Engine is the reply orchestrator. Every inbound customer message runs
// through the tiers in strict order; the first tier that produces a
// response short-circuits the rest. All cross-turn state lives on the
// conversation row, never in memory.
type Engine struct {
	repo     domainChatStorage.IChatStorageRepository
	locker   domainChatStorage.IConversationLocker
	provider AIProvider
	protocol domainProtocol.IProtocolUsecase
	sender   domainSend.ISendUsecase
	detector *EmployeeDetector
	prompter *Prompter
	owner    string
}

func NewEngine(
	repo domainChatStorage.IChatStorageRepository,
	locker domainChatStorage.IConversationLocker,
	provider AIProvider,
	protocol domainProtocol.IProtocolUsecase,
	sender domainSend.ISendUsecase,
	owner string,
) *Engine {
	return &Engine{
		repo:     repo,
		locker:   locker,
		provider: provider,
		protocol: protocol,
		sender:   sender,
		detector: NewEmployeeDetector(repo),
		prompter: NewPrompter(),
		owner:    owner,
	}
}

// Result reports what the engine decided for one inbound message.
type Result struct {
	Replied      bool
	ReplyText    string
	ProtocolCode string
	Tier         string
}

const (
	questionCondominium = "Para qual condomínio é esse atendimento?"
	questionApartment   = "Qual o número do apartamento ou unidade?"
	replyApology        = "Desculpe, tive um problema técnico agora. Já estou verificando, pode me confirmar os dados do atendimento?"
)

// HandleInbound runs the full tier sequence for one stored inbound
// message. Lock contention is not an error: it returns a silent Result.
func (e *Engine) HandleInbound(ctx context.Context, conversationID string, msg *domainChatStorage.Message, senderAddrs []waid.Address) (*Result, error) {
	// Tier 0: at most one orchestrator run per conversation at a time.
	if err := e.locker.Acquire(ctx, conversationID, e.owner, config.LockTTL); err != nil {
		if errors.Is(err, domainChatStorage.ErrLockHeld) {
			logrus.Debugf("[ENGINE] conversation %s locked, declining to reply", conversationID)
			return &Result{Tier: "lock_contention"}, nil
		}
		return nil, err
	}
	defer func() {
		if err := e.locker.Release(ctx, conversationID); err != nil {
			logrus.Warnf("[ENGINE] failed to release lock for %s: %v", conversationID, err)
		}
	}()

	// Re-read after the lock so a racing delivery's writes are visible.
	conv, err := e.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.AIMode != domainChatStorage.AIModeAuto || conv.HumanControl {
		return &Result{Tier: "ai_disabled"}, nil
	}

	payload := ParsePendingPayload(conv.PendingPayload)
	text := msg.Content

	// Cross-turn slot capture: take whatever the customer volunteers,
	// regardless of which field is currently pending.
	if apt := ExtractApartment(text, conv.PendingField == domainChatStorage.PendingApartment); apt != "" && payload.Apartment == "" {
		payload.Apartment = apt
	}
	if name := ExtractRequesterName(text); name != "" && payload.RequesterName == "" {
		payload.RequesterName = name
		payload.NameVolunteered = true
	}

	// Tier 1: resume an interrupted ticket creation.
	if conv.PendingField == domainChatStorage.PendingRetryProtocol {
		return e.tierRetry(ctx, conv, msg, payload, text)
	}

	// Tier 2: staff senders get commands, not conversation.
	staff, err := e.detector.Detect(ctx, senderAddrs)
	if err != nil {
		return nil, err
	}
	if staff != nil {
		if res, handled := e.tierStaff(ctx, conv, msg, payload, staff, text); handled {
			return res, nil
		}
		// Elevated roles fall through to the regular tiers.
	}

	// Tier 3: deterministic slot resolution for the pending field.
	if conv.PendingField != domainChatStorage.PendingNone {
		if res, handled := e.tierSlot(ctx, conv, msg, &payload, text); handled {
			return res, nil
		}
	}

	// Tier 4: open the ticket without a model call when everything the
	// common path needs is already on the table.
	if res, handled := e.tierAutoOpen(ctx, conv, msg, &payload, text); handled {
		return res, nil
	}

	// Tier 5: the model gets its turn.
	return e.tierModel(ctx, conv, msg, payload, text)
}

func (e *Engine) tierRetry(ctx context.Context, conv *domainChatStorage.Conversation, msg *domainChatStorage.Message, payload PendingPayload, text string) (*Result, error) {
	if payload.Summary == "" && !IsWeakSummary(text) {
		payload.Summary = text
	}

	result, err := e.createProtocol(ctx, conv, msg, payload, "ai", "", "customer")
	if err == nil {
		return e.confirmProtocol(ctx, conv, payload, result, "retry")
	}

	if field, question := classifyCreateError(err); field != domainChatStorage.PendingNone {
		payload.RetryCount = 0
		return e.askAndPend(ctx, conv, payload, field, question, "retry")
	}

	payload.RetryCount++
	if payload.RetryCount >= config.RetryProtocolBudget {
		logrus.Warnf("[ENGINE] retry budget exhausted for conversation %s, forcing reset", conv.ID)
		payload.RetryCount = 0
		return e.askAndPend(ctx, conv, payload, domainChatStorage.PendingCondominiumName, questionCondominium, "retry")
	}
	if err := e.savePending(ctx, conv.ID, domainChatStorage.PendingRetryProtocol, payload); err != nil {
		return nil, err
	}
	return e.reply(ctx, conv, replyApology, "", "retry")
}

// tierStaff returns handled=false only for elevated staff whose message
// is not a command.
func (e *Engine) tierStaff(ctx context.Context, conv *domainChatStorage.Conversation, msg *domainChatStorage.Message, payload PendingPayload, staff *StaffMatch, text string) (*Result, bool) {
	intent := ParseCommand(text)
	if !intent.Matched {
		if staff.Elevated() {
			return nil, false
		}
		logrus.Debugf("[ENGINE] staff chatter from %s suppressed", staff.ProfileID)
		return &Result{Tier: "staff_suppressed"}, true
	}

	if intent.NeedsMoreInfo {
		res, err := e.reply(ctx, conv, intent.Question, "", "staff_command")
		if err != nil {
			logrus.Errorf("[ENGINE] staff follow-up failed: %v", err)
			return &Result{Tier: "staff_command"}, true
		}
		return res, true
	}

	req := domainProtocol.CreateRequest{
		ConversationID:   conv.ID,
		ContactID:        conv.ContactID,
		CondominiumName:  intent.CondominiumName,
		Summary:          intent.Summary,
		Category:         intent.Category,
		Priority:         intent.Priority,
		Apartment:        payload.Apartment,
		RequesterName:    staff.Name,
		RequesterRole:    "staff",
		CreatedByType:    "agent",
		CreatedByAgentID: staff.ProfileID,
		SourceMessageID:  msg.ID,
		ForceNew:         intent.ForceNew,
	}
	result, err := e.protocol.Create(ctx, req)
	if err != nil {
		logrus.Errorf("[ENGINE] staff-originated protocol failed: %v", err)
		res, _ := e.reply(ctx, conv, "Não consegui registrar o chamado agora, tente novamente em instantes.", "", "staff_command")
		return res, true
	}
	res, _ := e.confirmProtocol(ctx, conv, payload, result, "staff_command")
	return res, true
}

// tierSlot consumes the customer's answer to whichever single question
// is pending. It returns handled=false when the turn should continue
// down to the model.
func (e *Engine) tierSlot(ctx context.Context, conv *domainChatStorage.Conversation, msg *domainChatStorage.Message, payload *PendingPayload, text string) (*Result, bool) {
	switch conv.PendingField {
	case domainChatStorage.PendingCondominiumName:
		condos, err := e.repo.ListCondominiums(ctx)
		if err != nil {
			logrus.Errorf("[ENGINE] condominium lookup failed: %v", err)
			return &Result{Tier: "slot"}, true
		}
		id, name, confidence := ResolveCondoName(text, condos)
		conv.ActiveCondominiumID = id
		conv.ActiveCondominiumName = name
		conv.ActiveCondominiumConfidence = confidence
		if err := e.repo.UpdateConversation(ctx, conv); err != nil {
			logrus.Errorf("[ENGINE] conversation update failed: %v", err)
			return &Result{Tier: "slot"}, true
		}
		payload.CondominiumID = id
		payload.CondominiumName = name

	case domainChatStorage.PendingApartment:
		if payload.Apartment == "" {
			if conv.ActiveCondominiumName == "" {
				// Lost the building in the meantime: a unit without a
				// building is useless, re-anchor on the location.
				res, err := e.askAndPend(ctx, conv, *payload, domainChatStorage.PendingCondominiumName, questionCondominium, "slot")
				if err != nil {
					logrus.Errorf("[ENGINE] slot question failed: %v", err)
				}
				return res, true
			}
			// No unit extracted; let the model work it out.
			return nil, false
		}
		conv.ActiveUnit = payload.Apartment
		if err := e.repo.UpdateConversation(ctx, conv); err != nil {
			logrus.Errorf("[ENGINE] conversation update failed: %v", err)
			return &Result{Tier: "slot"}, true
		}

	case domainChatStorage.PendingRequesterName:
		if payload.RequesterName == "" && !IsWeakSummary(text) && len(text) < 60 {
			payload.RequesterName = titleCase(text)
		}
		if payload.RequesterName == "" {
			return nil, false
		}

	default:
		return nil, false
	}

	// The slot is filled. With a summary on file, finish the ticket now;
	// otherwise clear the pending question and keep listening.
	if payload.Summary == "" {
		if err := e.savePending(ctx, conv.ID, domainChatStorage.PendingNone, *payload); err != nil {
			logrus.Errorf("[ENGINE] pending state save failed: %v", err)
		}
		conv.PendingField = domainChatStorage.PendingNone
		return nil, false
	}

	result, err := e.createProtocol(ctx, conv, msg, *payload, "ai", "", "customer")
	if err != nil {
		if field, question := classifyCreateError(err); field != domainChatStorage.PendingNone {
			res, askErr := e.askAndPend(ctx, conv, *payload, field, question, "slot")
			if askErr != nil {
				logrus.Errorf("[ENGINE] slot question failed: %v", askErr)
			}
			return res, true
		}
		res, rErr := e.enterRetry(ctx, conv, *payload, "slot")
		if rErr != nil {
			logrus.Errorf("[ENGINE] retry transition failed: %v", rErr)
		}
		return res, true
	}
	res, cErr := e.confirmProtocol(ctx, conv, *payload, result, "slot")
	if cErr != nil {
		logrus.Errorf("[ENGINE] confirmation failed: %v", cErr)
	}
	return res, true
}

// tierAutoOpen fires only when the common "problem plus building" path
// is complete, saving a model call. The unit is not gated here: only
// in-unit categories need one, and the create call reports that as a
// missing-unit error, which turns into the targeted question below.
func (e *Engine) tierAutoOpen(ctx context.Context, conv *domainChatStorage.Conversation, msg *domainChatStorage.Message, payload *PendingPayload, text string) (*Result, bool) {
	if conv.PendingField != domainChatStorage.PendingNone {
		return nil, false
	}
	if conv.ActiveCondominiumName == "" {
		return nil, false
	}
	if !ContainsOperationalIssue(text) {
		return nil, false
	}
	if !payload.AskedQuestion {
		return nil, false
	}
	if IsQuestion(text) || IsAcknowledgment(text) {
		return nil, false
	}
	if conv.LastProtocolAt != nil && time.Since(*conv.LastProtocolAt) < config.RecentProtocolWindow {
		return nil, false
	}
	if !IsUrgent(text) {
		turns, err := e.repo.CountMessages(ctx, conv.ID)
		if err != nil || turns < int64(config.AutoOpenMinTurns) {
			return nil, false
		}
	}

	if payload.Summary == "" {
		payload.Summary = text
	}
	if payload.Category == "" {
		payload.Category = InferCategory(payload.Summary)
	}
	if payload.Priority == "" {
		payload.Priority = InferUrgency(text)
	}

	result, err := e.createProtocol(ctx, conv, msg, *payload, "ai", "", "customer")
	if err != nil {
		if field, question := classifyCreateError(err); field != domainChatStorage.PendingNone {
			res, askErr := e.askAndPend(ctx, conv, *payload, field, question, "auto_open")
			if askErr != nil {
				logrus.Errorf("[ENGINE] auto-open question failed: %v", askErr)
			}
			return res, true
		}
		res, rErr := e.enterRetry(ctx, conv, *payload, "auto_open")
		if rErr != nil {
			logrus.Errorf("[ENGINE] retry transition failed: %v", rErr)
		}
		return res, true
	}
	res, cErr := e.confirmProtocol(ctx, conv, *payload, result, "auto_open")
	if cErr != nil {
		logrus.Errorf("[ENGINE] confirmation failed: %v", cErr)
	}
	return res, true
}

func (e *Engine) tierModel(ctx context.Context, conv *domainChatStorage.Conversation, msg *domainChatStorage.Message, payload PendingPayload, text string) (*Result, error) {
	history, err := e.repo.RecentMessages(ctx, conv.ID, config.HistoryLimit)
	if err != nil {
		return nil, err
	}

	var turns []ChatTurn
	for _, m := range history {
		if m.ID == msg.ID {
			continue // the current message goes in as UserText
		}
		role := "user"
		if m.Direction == domainChatStorage.DirectionOutbound {
			role = "assistant"
		}
		if m.Content == "" {
			continue
		}
		turns = append(turns, ChatTurn{Role: role, Text: m.Content})
	}

	req := ChatRequest{
		SystemPrompt: e.prompter.BuildSystemInstructions(conv, payload),
		History:      turns,
		UserText:     text,
		Model:        config.AIModel,
		ChatKey:      conv.ID,
	}
	if conv.PendingField == domainChatStorage.PendingNone {
		req.Tools = []Tool{CreateTicketTool()}
	}

	resp, err := e.provider.Chat(ctx, req)
	if err != nil {
		logrus.Errorf("[ENGINE] model call failed for %s: %v", conv.ID, err)
		if err := e.savePending(ctx, conv.ID, domainChatStorage.PendingRetryProtocol, payload); err != nil {
			return nil, err
		}
		return e.reply(ctx, conv, replyApology, "", "model")
	}

	for _, tc := range resp.ToolCalls {
		if tc.Name != "create_ticket" {
			continue
		}
		mergeToolArgs(&payload, tc.Args)
		result, err := e.createProtocol(ctx, conv, msg, payload, "ai", "", "customer")
		if err != nil {
			if field, question := classifyCreateError(err); field != domainChatStorage.PendingNone {
				return e.askAndPend(ctx, conv, payload, field, question, "model_tool")
			}
			return e.enterRetry(ctx, conv, payload, "model_tool")
		}
		return e.confirmProtocol(ctx, conv, payload, result, "model_tool")
	}

	replyText := resp.Text
	if replyText == "" {
		return &Result{Tier: "model"}, nil
	}

	// Greeting only for customers who introduced themselves this session.
	// Shared lines (front desks) would get a stale or wrong name.
	if payload.NameVolunteered && payload.RequesterName != "" {
		replyText = fmt.Sprintf("Olá, %s! %s", payload.RequesterName, replyText)
	}

	// Anti-repetition: never send the exact same assistant message twice
	// in a short window, it means the conversation is looping.
	last, err := e.repo.LastOutboundMessage(ctx, conv.ID)
	if err == nil && last != nil && last.Content == replyText &&
		time.Since(last.SentAt) <= config.AntiRepetitionWindow {
		logrus.Warnf("[ENGINE] suppressed repeated reply for conversation %s", conv.ID)
		return &Result{Tier: "anti_repetition"}, nil
	}

	if IsQuestion(replyText) {
		payload.AskedQuestion = true
	}
	if err := e.savePending(ctx, conv.ID, conv.PendingField, payload); err != nil {
		return nil, err
	}
	return e.reply(ctx, conv, replyText, "", "model")
}

// ------------------------------------------------------------------
// helpers
// ------------------------------------------------------------------

func classifyCreateError(err error) (domainChatStorage.PendingField, string) {
	switch {
	case errors.Is(err, domainProtocol.ErrMissingCondominium),
		errors.Is(err, domainProtocol.ErrAmbiguousCondominium):
		return domainChatStorage.PendingCondominiumName, questionCondominium
	case errors.Is(err, domainProtocol.ErrMissingUnit):
		return domainChatStorage.PendingApartment, questionApartment
	}
	return domainChatStorage.PendingNone, ""
}

func mergeToolArgs(payload *PendingPayload, args map[string]any) {
	if s, ok := args["summary"].(string); ok && s != "" {
		payload.Summary = s
	}
	if s, ok := args["category"].(string); ok && s != "" {
		payload.Category = s
	}
	if s, ok := args["priority"].(string); ok && s != "" {
		payload.Priority = s
	}
	if s, ok := args["unit"].(string); ok && s != "" {
		payload.Apartment = s
	}
}

func (e *Engine) createProtocol(ctx context.Context, conv *domainChatStorage.Conversation, msg *domainChatStorage.Message, payload PendingPayload, createdBy, agentID, role string) (domainProtocol.CreateResult, error) {
	condoID := conv.ActiveCondominiumID
	if condoID == "" {
		condoID = payload.CondominiumID
	}
	condoName := conv.ActiveCondominiumName
	if condoName == "" {
		condoName = payload.CondominiumName
	}
	apartment := payload.Apartment
	if apartment == "" {
		apartment = conv.ActiveUnit
	}
	category := payload.Category
	if category == "" {
		category = InferCategory(payload.Summary)
	}

	return e.protocol.Create(ctx, domainProtocol.CreateRequest{
		ConversationID:   conv.ID,
		ContactID:        conv.ContactID,
		CondominiumID:    condoID,
		CondominiumName:  condoName,
		Summary:          payload.Summary,
		Category:         category,
		Priority:         payload.Priority,
		Apartment:        apartment,
		RequesterName:    payload.RequesterName,
		RequesterRole:    role,
		CreatedByType:    createdBy,
		CreatedByAgentID: agentID,
		SourceMessageID:  msg.ID,
	})
}

// confirmProtocol clears the pending state and sends the confirmation.
func (e *Engine) confirmProtocol(ctx context.Context, conv *domainChatStorage.Conversation, payload PendingPayload, result domainProtocol.CreateResult, tier string) (*Result, error) {
	cleared := PendingPayload{AskedQuestion: payload.AskedQuestion, NameVolunteered: payload.NameVolunteered, RequesterName: payload.RequesterName}
	if err := e.savePending(ctx, conv.ID, domainChatStorage.PendingNone, cleared); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Prontinho! Seu atendimento foi registrado com o protocolo *%s*. Nossa equipe já vai cuidar disso.", result.ProtocolCode)
	if result.AlreadyExisted {
		text = fmt.Sprintf("Esse atendimento já está registrado com o protocolo *%s*, pode ficar tranquilo.", result.ProtocolCode)
	}
	return e.reply(ctx, conv, text, result.ProtocolCode, tier)
}

// askAndPend switches the pending field and asks the single targeted
// question for it.
func (e *Engine) askAndPend(ctx context.Context, conv *domainChatStorage.Conversation, payload PendingPayload, field domainChatStorage.PendingField, question, tier string) (*Result, error) {
	payload.AskedQuestion = true
	if err := e.savePending(ctx, conv.ID, field, payload); err != nil {
		return nil, err
	}
	return e.reply(ctx, conv, question, "", tier)
}

// enterRetry parks the creation attempt in retry_protocol for the next
// turn and apologizes once.
func (e *Engine) enterRetry(ctx context.Context, conv *domainChatStorage.Conversation, payload PendingPayload, tier string) (*Result, error) {
	payload.RetryCount++
	if err := e.savePending(ctx, conv.ID, domainChatStorage.PendingRetryProtocol, payload); err != nil {
		return nil, err
	}
	return e.reply(ctx, conv, replyApology, "", tier)
}

func (e *Engine) savePending(ctx context.Context, conversationID string, field domainChatStorage.PendingField, payload PendingPayload) error {
	return e.repo.SetPendingState(ctx, conversationID, field, payload.Encode())
}

func (e *Engine) reply(ctx context.Context, conv *domainChatStorage.Conversation, text, protocolCode, tier string) (*Result, error) {
	_, err := e.sender.SendText(ctx, domainSend.TextRequest{
		ConversationID: conv.ID,
		Content:        text,
		SenderName:     config.ProviderSenderName,
	})
	if err != nil {
		logrus.Errorf("[ENGINE] send failed for conversation %s: %v", conv.ID, err)
		return &Result{Tier: tier, ReplyText: text, ProtocolCode: protocolCode}, err
	}
	return &Result{Replied: true, ReplyText: text, ProtocolCode: protocolCode, Tier: tier}, nil
}
