package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-wacloud/inbox/domain/thread"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// threadModel.ActiveKey is "waba|contact" while the thread is open and NULL once
// it is COMPLETED; the partial unique index allows one open thread per pair.
type threadModel struct {
	ID                   string                                         `gorm:"primaryKey;column:id"`
	WaBusinessID         string                                         `gorm:"column:wa_business_id;not null;index:idx_threads_pair"`
	ContactWaID          string                                         `gorm:"column:contact_wa_id;not null;index:idx_threads_pair"`
	ActiveKey            *string                                        `gorm:"column:active_key;uniqueIndex:idx_threads_active_key,where:active_key IS NOT NULL"`
	PhoneNumberID        string                                         `gorm:"column:phone_number_id;not null"`
	DisplayPhoneNumber   string                                         `gorm:"column:display_phone_number"`
	ContactName          string                                         `gorm:"column:contact_name"`
	UnreadCount          int                                            `gorm:"column:unread_count;not null"`
	Status               string                                         `gorm:"column:status;not null;index"`
	LastMessage          string                                         `gorm:"column:last_message;type:text"`
	LastMessageMediaType string                                         `gorm:"column:last_message_media_type"`
	FirstResponseAt      *time.Time                                     `gorm:"column:first_response_at"`
	LastResponseAt       *time.Time                                     `gorm:"column:last_response_at"`
	HandledBy            string                                         `gorm:"column:handled_by"`
	InternalUserDetail   datatypes.JSONSlice[thread.InternalUserDetail] `gorm:"column:internal_user_detail"`
	CreatedAt            time.Time                                      `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt            time.Time                                      `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	Version              int64                                          `gorm:"column:version;not null;default:0"`
}

func (threadModel) TableName() string { return "threads" }

type ThreadGormRepository struct {
	db *gorm.DB
}

func NewThreadGormRepository(db *gorm.DB) *ThreadGormRepository {
	return &ThreadGormRepository{db: db}
}

func (r *ThreadGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&threadModel{})
}

func (r *ThreadGormRepository) Create(ctx context.Context, t *thread.Thread) error {
	m := toThreadModel(t)
	return translateThreadErr(t, conn(ctx, r.db).Create(&m).Error)
}

// Save writes every column, zero values included, so a snapshot restore is exact.
// The write only lands while the row still carries t.Version; otherwise someone
// else saved in between and Save returns a ConflictError. t.Version is advanced
// on success.
func (r *ThreadGormRepository) Save(ctx context.Context, t *thread.Thread) error {
	m := toThreadModel(t)
	m.Version = t.Version + 1

	res := conn(ctx, r.db).Model(&threadModel{}).
		Where("id = ? AND version = ?", t.ID, t.Version).
		Updates(threadColumns(m))
	if err := translateThreadErr(t, res.Error); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return pkgError.ConflictError(fmt.Sprintf("thread %s was modified concurrently (version %d)", t.ID, t.Version))
	}
	t.Version = m.Version
	return nil
}

func (r *ThreadGormRepository) Delete(ctx context.Context, id string) error {
	return conn(ctx, r.db).Delete(&threadModel{}, "id = ?", id).Error
}

func (r *ThreadGormRepository) GetByID(ctx context.Context, id string) (*thread.Thread, error) {
	var m threadModel
	if err := conn(ctx, r.db).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, thread.ErrNotFound
		}
		return nil, err
	}
	return fromThreadModel(m), nil
}

// FindLatest prefers the open thread; otherwise the newest completed one.
// Inside a transaction the open thread row stays locked until commit.
func (r *ThreadGormRepository) FindLatest(ctx context.Context, waBusinessID, contactWaID string) (*thread.Thread, error) {
	var m threadModel
	err := forUpdate(ctx, conn(ctx, r.db)).
		Where("active_key = ?", thread.LockKey(waBusinessID, contactWaID)).
		First(&m).Error
	if err == nil {
		return fromThreadModel(m), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = conn(ctx, r.db).
		Where("wa_business_id = ? AND contact_wa_id = ?", waBusinessID, contactWaID).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, thread.ErrNotFound
		}
		return nil, err
	}
	return fromThreadModel(m), nil
}

func (r *ThreadGormRepository) CountOpen(ctx context.Context, waBusinessID, contactWaID string) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&threadModel{}).
		Where("wa_business_id = ? AND contact_wa_id = ? AND status <> ?", waBusinessID, contactWaID, string(thread.StatusCompleted)).
		Count(&n).Error
	return n, err
}

func translateThreadErr(t *thread.Thread, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return pkgError.ConflictError(fmt.Sprintf("an open thread already exists for %s", thread.LockKey(t.WaBusinessID, t.ContactWaID)))
	}
	return err
}

// --- Mappers ---

func threadColumns(m threadModel) map[string]any {
	return map[string]any{
		"active_key":              m.ActiveKey,
		"phone_number_id":         m.PhoneNumberID,
		"display_phone_number":    m.DisplayPhoneNumber,
		"contact_name":            m.ContactName,
		"unread_count":            m.UnreadCount,
		"status":                  m.Status,
		"last_message":            m.LastMessage,
		"last_message_media_type": m.LastMessageMediaType,
		"first_response_at":       m.FirstResponseAt,
		"last_response_at":        m.LastResponseAt,
		"handled_by":              m.HandledBy,
		"internal_user_detail":    m.InternalUserDetail,
		"updated_at":              m.UpdatedAt,
		"version":                 m.Version,
	}
}

func toThreadModel(t *thread.Thread) threadModel {
	var activeKey *string
	if t.IsOpen() {
		k := thread.LockKey(t.WaBusinessID, t.ContactWaID)
		activeKey = &k
	}
	details := t.InternalUserDetail
	if details == nil {
		details = []thread.InternalUserDetail{}
	}
	return threadModel{
		ID:                   t.ID,
		WaBusinessID:         t.WaBusinessID,
		ContactWaID:          t.ContactWaID,
		ActiveKey:            activeKey,
		PhoneNumberID:        t.PhoneNumberID,
		DisplayPhoneNumber:   t.DisplayPhoneNumber,
		ContactName:          t.ContactName,
		UnreadCount:          t.UnreadCount,
		Status:               string(t.Status),
		LastMessage:          t.LastMessage,
		LastMessageMediaType: t.LastMessageMediaType,
		FirstResponseAt:      t.FirstResponseAt,
		LastResponseAt:       t.LastResponseAt,
		HandledBy:            t.HandledBy,
		InternalUserDetail:   datatypes.NewJSONSlice(details),
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
		Version:              t.Version,
	}
}

func fromThreadModel(m threadModel) *thread.Thread {
	return &thread.Thread{
		ID:                   m.ID,
		WaBusinessID:         m.WaBusinessID,
		PhoneNumberID:        m.PhoneNumberID,
		DisplayPhoneNumber:   m.DisplayPhoneNumber,
		ContactWaID:          m.ContactWaID,
		ContactName:          m.ContactName,
		UnreadCount:          m.UnreadCount,
		Status:               thread.Status(m.Status),
		LastMessage:          m.LastMessage,
		LastMessageMediaType: m.LastMessageMediaType,
		FirstResponseAt:      m.FirstResponseAt,
		LastResponseAt:       m.LastResponseAt,
		HandledBy:            m.HandledBy,
		InternalUserDetail:   []thread.InternalUserDetail(m.InternalUserDetail),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		Version:              m.Version,
	}
}
