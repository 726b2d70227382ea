package protocol

import (
	"context"
	"strings"
	"time"

	domainProtocol "github.com/zapdesk/zapdesk/domains/protocol"
	"gorm.io/gorm"
)

type protocolModel struct {
	ID               string `gorm:"primaryKey"`
	Code             string `gorm:"uniqueIndex"`
	ConversationID   string `gorm:"column:conversation_id;index"`
	ContactID        string `gorm:"column:contact_id;index"`
	CondominiumID    string `gorm:"column:condominium_id;index"`
	CondominiumName  string `gorm:"column:condominium_name"`
	Summary          string
	Category         string
	Priority         string `gorm:"not null;default:normal"`
	Apartment        string
	RequesterName    string     `gorm:"column:requester_name"`
	RequesterRole    string     `gorm:"column:requester_role"`
	Status           string     `gorm:"not null;default:open"`
	CreatedByType    string     `gorm:"column:created_by_type"`
	CreatedByAgentID string     `gorm:"column:created_by_agent_id"`
	SourceMessageID  string     `gorm:"column:source_message_id"`
	TemplateID       string     `gorm:"column:template_id"`
	SLADueAt         *time.Time `gorm:"column:sla_due_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime"`
}

func (protocolModel) TableName() string {
	return "protocols"
}

type workItemModel struct {
	ID         string `gorm:"primaryKey"`
	ProtocolID string `gorm:"column:protocol_id;index"`
	Title      string
	Status     string    `gorm:"not null;default:pending"`
	Position   int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (workItemModel) TableName() string {
	return "protocol_work_items"
}

type templateModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Keywords  string // CSV string
	Category  string
	Priority  string
	WorkItems string    `gorm:"column:work_items"` // newline separated titles
	SLAHours  int       `gorm:"column:sla_hours;not null;default:48"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (templateModel) TableName() string {
	return "protocol_templates"
}

// GormRepository implements IProtocolRepository. It shares the database
// handle with the chat storage repository.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&protocolModel{},
		&workItemModel{},
		&templateModel{},
	)
}

func (r *GormRepository) CreateProtocol(ctx context.Context, p *domainProtocol.Protocol, items []*domainProtocol.WorkItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := toProtocolModel(p)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for _, item := range items {
			im := workItemModel{
				ID:         item.ID,
				ProtocolID: p.ID,
				Title:      item.Title,
				Status:     item.Status,
				Position:   item.Position,
			}
			if err := tx.Create(&im).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormRepository) CountWithCodePrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&protocolModel{}).
		Where("code LIKE ?", prefix+"%").
		Count(&count).Error
	return count, err
}

func (r *GormRepository) FindRecentByConversation(ctx context.Context, conversationID string, within time.Duration) (*domainProtocol.Protocol, error) {
	cutoff := time.Now().UTC().Add(-within)
	var model protocolModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND created_at >= ?", conversationID, cutoff).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return fromProtocolModel(model), nil
}

func (r *GormRepository) ListTemplates(ctx context.Context) ([]*domainProtocol.Template, error) {
	var models []templateModel
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*domainProtocol.Template, len(models))
	for i, m := range models {
		result[i] = fromTemplateModel(m)
	}
	return result, nil
}

func toProtocolModel(p *domainProtocol.Protocol) protocolModel {
	return protocolModel{
		ID:               p.ID,
		Code:             p.Code,
		ConversationID:   p.ConversationID,
		ContactID:        p.ContactID,
		CondominiumID:    p.CondominiumID,
		CondominiumName:  p.CondominiumName,
		Summary:          p.Summary,
		Category:         p.Category,
		Priority:         p.Priority,
		Apartment:        p.Apartment,
		RequesterName:    p.RequesterName,
		RequesterRole:    p.RequesterRole,
		Status:           p.Status,
		CreatedByType:    p.CreatedByType,
		CreatedByAgentID: p.CreatedByAgentID,
		SourceMessageID:  p.SourceMessageID,
		TemplateID:       p.TemplateID,
		SLADueAt:         p.SLADueAt,
	}
}

func fromProtocolModel(m protocolModel) *domainProtocol.Protocol {
	return &domainProtocol.Protocol{
		ID:               m.ID,
		Code:             m.Code,
		ConversationID:   m.ConversationID,
		ContactID:        m.ContactID,
		CondominiumID:    m.CondominiumID,
		CondominiumName:  m.CondominiumName,
		Summary:          m.Summary,
		Category:         m.Category,
		Priority:         m.Priority,
		Apartment:        m.Apartment,
		RequesterName:    m.RequesterName,
		RequesterRole:    m.RequesterRole,
		Status:           m.Status,
		CreatedByType:    m.CreatedByType,
		CreatedByAgentID: m.CreatedByAgentID,
		SourceMessageID:  m.SourceMessageID,
		TemplateID:       m.TemplateID,
		SLADueAt:         m.SLADueAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func fromTemplateModel(m templateModel) *domainProtocol.Template {
	var keywords []string
	if trimmed := strings.TrimSpace(m.Keywords); trimmed != "" {
		keywords = strings.Split(trimmed, ",")
	}
	var items []string
	for _, line := range strings.Split(m.WorkItems, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			items = append(items, line)
		}
	}
	return &domainProtocol.Template{
		ID:        m.ID,
		Name:      m.Name,
		Keywords:  keywords,
		Category:  m.Category,
		Priority:  m.Priority,
		WorkItems: items,
		SLAHours:  m.SLAHours,
		Active:    m.Active,
	}
}
