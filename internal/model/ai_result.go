package model

import "time"

const (
	AiTypeSummarize = "SUMMARIZE"
	AiTypeSentiment = "SENTIMENT"
	AiTypeCSV       = "CSV"

	AiStatusPending = "PENDING"
	AiStatusSuccess = "SUCCESS"
	AiStatusError   = "ERROR"

	PreviewMaxLen = 200
)

type AiResult struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Preview   string    `json:"preview"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"timeStamp"`
}

func ValidAiType(t string) bool {
	return t == AiTypeSummarize || t == AiTypeSentiment || t == AiTypeCSV
}

func ValidAiStatus(s string) bool {
	return s == AiStatusPending || s == AiStatusSuccess || s == AiStatusError
}

// TruncatePreview 按 rune 截断到 200 字符
func TruncatePreview(s string) string {
	r := []rune(s)
	if len(r) <= PreviewMaxLen {
		return s
	}
	return string(r[:PreviewMaxLen])
}
