package models

// AudioTrack is a gated content item; free tracks are open to everyone and
// the rest require an active membership.
type AudioTrack struct {
	BaseModel

	AudioName        string `json:"audio_name" gorm:"size:128;uniqueIndex;not null"`
	AudioDisplayName string `json:"audio_display_name" gorm:"size:128;not null"`
	CyclePhase       string `json:"cycle_phase" gorm:"size:32;not null;index"`
	IsFree           bool   `json:"is_free" gorm:"not null;default:false"`
	DisplayOrder     int    `json:"display_order" gorm:"not null;default:0"`
	Description      string `json:"description,omitempty" gorm:"type:text"`
	DurationSeconds  *int   `json:"duration_seconds,omitempty"`
}

// TableName 指定表名
func (AudioTrack) TableName() string {
	return "audio_access_control"
}
