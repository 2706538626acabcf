package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// OptionalID 区分三种情况：字段缺省（Set=false）、0 或 null（清空）、正整数（设置）
type OptionalID struct {
	Set   bool
	Value *int64
}

func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	if id < 0 {
		return errors.New("id must be a positive integer, 0 or null")
	}
	if id == 0 {
		o.Value = nil
		return nil
	}
	o.Value = &id
	return nil
}

// Clears 字段存在且要求清空
func (o OptionalID) Clears() bool {
	return o.Set && o.Value == nil
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// ParseDate 接受 ISO 日期或日期时间，空串返回 nil
func ParseDate(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("invalid date: " + v)
}
