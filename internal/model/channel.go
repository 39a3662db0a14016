package model

import (
	"fmt"
	"strings"
	"time"
)

type ChannelType string

const (
	ChannelPopup    ChannelType = "popup"
	ChannelDesktop  ChannelType = "desktop"
	ChannelTelegram ChannelType = "telegram"
	ChannelEmail    ChannelType = "email"
)

func ParseChannelType(s string) (ChannelType, error) {
	switch ChannelType(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelPopup:
		return ChannelPopup, nil
	case ChannelDesktop:
		return ChannelDesktop, nil
	case ChannelTelegram:
		return ChannelTelegram, nil
	case ChannelEmail:
		return ChannelEmail, nil
	default:
		return "", fmt.Errorf("unknown notification channel %q", s)
	}
}

// ChannelStats tracks delivery outcomes per notification channel. The
// notification dispatcher is the only writer.
type ChannelStats struct {
	ID              string      `json:"id"`
	Type            ChannelType `json:"type"`
	Enabled         bool        `json:"enabled"`
	Degraded        bool        `json:"degraded"`
	TotalSent       uint64      `json:"total_sent"`
	TotalSuccessful uint64      `json:"total_successful"`
	TotalFailed     uint64      `json:"total_failed"`
	LastUsed        *time.Time  `json:"last_used,omitempty"`
}

// SuccessRate is 0 when nothing has been sent yet.
func (s *ChannelStats) SuccessRate() float64 {
	if s.TotalSent == 0 {
		return 0
	}
	return float64(s.TotalSuccessful) / float64(s.TotalSent)
}
