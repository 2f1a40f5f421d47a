// Package model defines the diary's domain types: videos, clips, compilations,
// calendar days and the user profile, plus the status enums that drive polling.
package model

import (
	"errors"
	"fmt"
)

// ErrUnknownStatus is returned when a wire string does not name a known enum value.
var ErrUnknownStatus = errors.New("unknown status")

// VideoStatus is the server-side processing state of an uploaded video.
type VideoStatus string

const (
	VideoUploading     VideoStatus = "UPLOADING"
	VideoProcessing    VideoStatus = "PROCESSING"
	VideoReady         VideoStatus = "READY"
	VideoFailed        VideoStatus = "FAILED"
	VideoClipExtracted VideoStatus = "CLIP_EXTRACTED"
)

// Terminal reports whether no further transition can happen.
func (s VideoStatus) Terminal() bool {
	switch s {
	case VideoReady, VideoFailed, VideoClipExtracted:
		return true
	}
	return false
}

// ParseVideoStatus converts a wire string to a VideoStatus.
func ParseVideoStatus(s string) (VideoStatus, error) {
	switch v := VideoStatus(s); v {
	case VideoUploading, VideoProcessing, VideoReady, VideoFailed, VideoClipExtracted:
		return v, nil
	}
	return "", fmt.Errorf("video status %q: %w", s, ErrUnknownStatus)
}

func (s *VideoStatus) UnmarshalText(b []byte) error {
	v, err := ParseVideoStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ClipStatus is the extraction state of a one-second clip.
type ClipStatus string

const (
	ClipExtracting ClipStatus = "EXTRACTING"
	ClipReady      ClipStatus = "READY"
	ClipFailed     ClipStatus = "FAILED"
)

func (s ClipStatus) Terminal() bool {
	return s == ClipReady || s == ClipFailed
}

// ParseClipStatus converts a wire string to a ClipStatus.
func ParseClipStatus(s string) (ClipStatus, error) {
	switch v := ClipStatus(s); v {
	case ClipExtracting, ClipReady, ClipFailed:
		return v, nil
	}
	return "", fmt.Errorf("clip status %q: %w", s, ErrUnknownStatus)
}

func (s *ClipStatus) UnmarshalText(b []byte) error {
	v, err := ParseClipStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// CompilationStatus is the render state of a compilation.
type CompilationStatus string

const (
	CompilationPending    CompilationStatus = "PENDING"
	CompilationProcessing CompilationStatus = "PROCESSING"
	CompilationCompleted  CompilationStatus = "COMPLETED"
	CompilationFailed     CompilationStatus = "FAILED"
)

func (s CompilationStatus) Terminal() bool {
	return s == CompilationCompleted || s == CompilationFailed
}

// ParseCompilationStatus converts a wire string to a CompilationStatus.
func ParseCompilationStatus(s string) (CompilationStatus, error) {
	switch v := CompilationStatus(s); v {
	case CompilationPending, CompilationProcessing, CompilationCompleted, CompilationFailed:
		return v, nil
	}
	return "", fmt.Errorf("compilation status %q: %w", s, ErrUnknownStatus)
}

func (s *CompilationStatus) UnmarshalText(b []byte) error {
	v, err := ParseCompilationStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Quality is the output resolution of a compilation.
type Quality string

const (
	Quality480p  Quality = "Q_480P"
	Quality720p  Quality = "Q_720P"
	Quality1080p Quality = "Q_1080P"
	Quality4K    Quality = "Q_4K"
)

// ParseQuality accepts either the wire name ("Q_720P") or the short form ("720p").
func ParseQuality(s string) (Quality, error) {
	switch s {
	case "Q_480P", "480p", "480P":
		return Quality480p, nil
	case "Q_720P", "720p", "720P":
		return Quality720p, nil
	case "Q_1080P", "1080p", "1080P":
		return Quality1080p, nil
	case "Q_4K", "4k", "4K":
		return Quality4K, nil
	}
	return "", fmt.Errorf("quality %q: %w", s, ErrUnknownStatus)
}

// WatermarkPosition places the date watermark on rendered compilations.
type WatermarkPosition string

const (
	WatermarkTopLeft      WatermarkPosition = "TOP_LEFT"
	WatermarkTopRight     WatermarkPosition = "TOP_RIGHT"
	WatermarkBottomLeft   WatermarkPosition = "BOTTOM_LEFT"
	WatermarkBottomRight  WatermarkPosition = "BOTTOM_RIGHT"
	WatermarkCenterTop    WatermarkPosition = "CENTER_TOP"
	WatermarkCenterBottom WatermarkPosition = "CENTER_BOTTOM"
)

// ParseWatermarkPosition converts a wire string to a WatermarkPosition.
func ParseWatermarkPosition(s string) (WatermarkPosition, error) {
	switch v := WatermarkPosition(s); v {
	case WatermarkTopLeft, WatermarkTopRight, WatermarkBottomLeft,
		WatermarkBottomRight, WatermarkCenterTop, WatermarkCenterBottom:
		return v, nil
	}
	return "", fmt.Errorf("watermark position %q: %w", s, ErrUnknownStatus)
}

// Tier is the user's subscription level.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierPremium    Tier = "PREMIUM"
	TierEnterprise Tier = "ENTERPRISE"
)
