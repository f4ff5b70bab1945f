package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-wacloud/inbox/domain/chat"
	"gorm.io/gorm"
)

type chatModel struct {
	ID            string    `gorm:"primaryKey;column:id"`
	ThreadID      string    `gorm:"column:thread_id;not null;index:idx_chats_thread_created"`
	Wamid         *string   `gorm:"column:wamid;uniqueIndex:idx_chats_wamid,where:wamid IS NOT NULL"`
	From          string    `gorm:"column:from_id;not null"`
	PhoneNumberID string    `gorm:"column:phone_number_id;not null"`
	MediaID       string    `gorm:"column:media_id"`
	MediaType     string    `gorm:"column:media_type"`
	MediaPath     string    `gorm:"column:media_path"`
	Message       string    `gorm:"column:message;type:text"`
	Unread        bool      `gorm:"column:unread;not null"`
	ReplyTo       string    `gorm:"column:reply_to"`
	RepliedBy     string    `gorm:"column:replied_by"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index:idx_chats_thread_created;autoCreateTime:false"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (chatModel) TableName() string { return "chats" }

type ChatGormRepository struct {
	db *gorm.DB
}

func NewChatGormRepository(db *gorm.DB) *ChatGormRepository {
	return &ChatGormRepository{db: db}
}

func (r *ChatGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&chatModel{})
}

func (r *ChatGormRepository) Create(ctx context.Context, c *chat.Chat) error {
	m := toChatModel(c)
	err := conn(ctx, r.db).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) && c.Wamid != nil {
		return fmt.Errorf("%w: %s", chat.ErrDuplicate, *c.Wamid)
	}
	return err
}

func (r *ChatGormRepository) FindByWamid(ctx context.Context, wamid string) (*chat.Chat, error) {
	var m chatModel
	if err := conn(ctx, r.db).First(&m, "wamid = ?", wamid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chat.ErrNotFound
		}
		return nil, err
	}
	return fromChatModel(m), nil
}

// ListByThread returns the newest chats first.
func (r *ChatGormRepository) ListByThread(ctx context.Context, threadID string, limit int) ([]chat.Chat, error) {
	var models []chatModel
	q := conn(ctx, r.db).Where("thread_id = ?", threadID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]chat.Chat, len(models))
	for i, m := range models {
		res[i] = *fromChatModel(m)
	}
	return res, nil
}

func (r *ChatGormRepository) MarkRead(ctx context.Context, id string) (bool, error) {
	res := conn(ctx, r.db).Model(&chatModel{}).
		Where("id = ? AND unread = ?", id, true).
		Updates(map[string]any{"unread": false, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

func (r *ChatGormRepository) MarkReadUpTo(ctx context.Context, threadID string, until time.Time) (int64, error) {
	res := conn(ctx, r.db).Model(&chatModel{}).
		Where("thread_id = ? AND unread = ? AND created_at <= ?", threadID, true, until.UTC()).
		Updates(map[string]any{"unread": false, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func toChatModel(c *chat.Chat) chatModel {
	return chatModel{
		ID:            c.ID,
		ThreadID:      c.ThreadID,
		Wamid:         c.Wamid,
		From:          c.From,
		PhoneNumberID: c.PhoneNumberID,
		MediaID:       c.MediaID,
		MediaType:     c.MediaType,
		MediaPath:     c.MediaPath,
		Message:       c.Message,
		Unread:        c.Unread,
		ReplyTo:       c.ReplyTo,
		RepliedBy:     c.RepliedBy,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func fromChatModel(m chatModel) *chat.Chat {
	return &chat.Chat{
		ID:            m.ID,
		ThreadID:      m.ThreadID,
		Wamid:         m.Wamid,
		From:          m.From,
		PhoneNumberID: m.PhoneNumberID,
		MediaID:       m.MediaID,
		MediaType:     m.MediaType,
		MediaPath:     m.MediaPath,
		Message:       m.Message,
		Unread:        m.Unread,
		ReplyTo:       m.ReplyTo,
		RepliedBy:     m.RepliedBy,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
