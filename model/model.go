package model

import "time"

// Video is one day's full-length recording.
type Video struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Date            Date        `json:"date"`
	Status          VideoStatus `json:"status"`
	FileSize        *int64      `json:"fileSize,omitempty"`
	DurationSeconds *float64    `json:"durationSeconds,omitempty"`
	SpriteSheetURL  string      `json:"spriteSheetUrl,omitempty"`
	WaveformURL     string      `json:"waveformUrl,omitempty"`
	VideoURL        string      `json:"videoUrl,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Clip is the one-second excerpt chosen from a day's video.
type Clip struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	VideoID          string     `json:"videoId"`
	Date             Date       `json:"date"`
	Status           ClipStatus `json:"status"`
	StartTimeSeconds float64    `json:"startTimeSeconds"`
	ObjectKey        string     `json:"objectKey,omitempty"`
	FileSize         *int64     `json:"fileSize,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Compilation is a rendered montage of clips over a date range.
type Compilation struct {
	ID                string            `json:"id"`
	UserID            string            `json:"userId"`
	StartDate         Date              `json:"startDate"`
	EndDate           Date              `json:"endDate"`
	Status            CompilationStatus `json:"status"`
	Quality           Quality           `json:"quality"`
	WatermarkPosition WatermarkPosition `json:"watermarkPosition"`
	ClipCount         int               `json:"clipCount"`
	ClipIDs           []string          `json:"clipIds"`
	ObjectKey         string            `json:"objectKey,omitempty"`
	FileSizeBytes     *int64            `json:"fileSizeBytes,omitempty"`
	DurationSeconds   *float64          `json:"durationSeconds,omitempty"`
	ExpiresAt         *time.Time        `json:"expiresAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// CompilationProgress is a status snapshot of a rendering compilation.
type CompilationProgress struct {
	ID              string            `json:"id"`
	Status          CompilationStatus `json:"status"`
	ClipCount       int               `json:"clipCount"`
	CurrentClip     *int              `json:"currentClip,omitempty"`
	PercentComplete *int              `json:"percentComplete,omitempty"`
}

// CalendarDay is one day of the month projection.
type CalendarDay struct {
	Date       Date        `json:"date"`
	HasClip    bool        `json:"hasClip"`
	ClipID     string      `json:"clipId,omitempty"`
	ClipStatus *ClipStatus `json:"status,omitempty"`
}

// CalendarMonth groups the days of one (year, month) bucket.
type CalendarMonth struct {
	Year  int           `json:"year"`
	Month int           `json:"month"`
	Days  []CalendarDay `json:"days"`
}

// User is the authenticated account profile.
type User struct {
	ID                       string            `json:"id"`
	Email                    string            `json:"email"`
	DisplayName              string            `json:"displayName"`
	Tier                     Tier              `json:"tier"`
	EmailVerified            bool              `json:"emailVerified"`
	ProfilePictureURL        string            `json:"profilePictureUrl,omitempty"`
	Timezone                 string            `json:"timezone"`
	DefaultWatermarkPosition WatermarkPosition `json:"defaultWatermarkPosition"`
	NotificationsEnabled     bool              `json:"notificationsEnabled"`
	CreatedAt                time.Time         `json:"createdAt"`
}

// TierLimits are the per-tier quotas enforced by the server.
type TierLimits struct {
	MaxVideosPerDay          int `json:"maxVideosPerDay"`
	MaxVideoSizeMB           int `json:"maxVideoSizeMb"`
	MaxCompilationDays       int `json:"maxCompilationDays"`
	CompilationRetentionDays int `json:"compilationRetentionDays"`
}

// Quota is the user's tier together with its limits.
type Quota struct {
	Tier   Tier       `json:"tier"`
	Limits TierLimits `json:"limits"`
}
