package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"presence-service/internal/model"
)

// LastSeenRepository persists the fully-offline transition time per user.
// Presence itself lives in the key-value store; this table only backs the
// "last seen" readout for users who are currently offline.
type LastSeenRepository struct {
	db *gorm.DB
}

func NewLastSeenRepository(db *gorm.DB) *LastSeenRepository {
	return &LastSeenRepository{db: db}
}

func (r *LastSeenRepository) Record(userID int64, nickname string, at time.Time) error {
	record := &model.UserLastSeen{
		UserID:   userID,
		Nickname: nickname,
		LastSeen: at,
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nickname", "last_seen"}),
	}).Create(record).Error
}

func (r *LastSeenRepository) Get(userID int64) (*model.UserLastSeen, error) {
	var record model.UserLastSeen
	err := r.db.First(&record, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
