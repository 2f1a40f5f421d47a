package api

import (
	"diarysync/auth"
	"diarysync/model"
)

// Page is one page of a paginated listing.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Timezone    string `json:"timezone,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is returned by login, register and refresh.
type AuthResponse struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresIn    int64      `json:"expiresIn"`
	User         model.User `json:"user"`
}

// Tokens converts the response into what the credential store persists.
func (r *AuthResponse) Tokens() auth.Tokens {
	return auth.Tokens{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    r.ExpiresIn,
		UserID:       r.User.ID,
		Tier:         r.User.Tier,
	}
}

type initiateUploadRequest struct {
	Date model.Date `json:"date"`
}

// UploadTicket is the server's answer to an upload initiation.
type UploadTicket struct {
	VideoID   string `json:"videoId"`
	UploadURL string `json:"uploadUrl"`
}

// VideoFilter narrows a video listing. Zero fields are omitted.
type VideoFilter struct {
	Date   model.Date
	Status model.VideoStatus
}

// Key identifies the filter scope in the local cache.
func (f VideoFilter) Key() string {
	key := "all"
	if !f.Date.IsZero() {
		key = "date=" + f.Date.String()
	}
	if f.Status != "" {
		key += ",status=" + string(f.Status)
	}
	return key
}

// SelectClipRequest is the body of POST /clips/select.
type SelectClipRequest struct {
	VideoID          string     `json:"videoId"`
	Date             model.Date `json:"date"`
	StartTimeSeconds float64    `json:"startTimeSeconds"`
}

// CreateCompilationRequest is the body of POST /compilations/create.
type CreateCompilationRequest struct {
	StartDate         model.Date              `json:"startDate"`
	EndDate           model.Date              `json:"endDate"`
	Quality           model.Quality           `json:"quality"`
	WatermarkPosition model.WatermarkPosition `json:"watermarkPosition"`
	ClipIDs           []string                `json:"clipIds"`
}

type objectRequest struct {
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"objectKey"`
}

// PresignedURL is a time-limited direct URL to an object.
type PresignedURL struct {
	URL       string `json:"url"`
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"objectKey"`
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"objectKey"`
	Exists    bool   `json:"exists"`
	Size      *int64 `json:"size,omitempty"`
}

type registerDeviceRequest struct {
	FCMToken string `json:"fcmToken"`
	Platform string `json:"platform"`
}
