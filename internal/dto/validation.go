package dto

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidator 让 FieldError.Field() 返回 json 字段名
func RegisterValidator() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

// 按 "结构体.字段.tag" 或 "字段.tag" 查找
var fieldMessages = map[string]string{
	"CreateProjectRequest.name.required": "Project name must be at least 2 characters long",
	"CreateProjectRequest.name.min":      "Project name must be at least 2 characters long",
	"contact.email":                      "Invalid contact email",
	"title.required":                     "Title must be at least 2 characters",
	"title.min":                          "Title must be at least 2 characters",
	"CreateClientRequest.name.required":  "Name is required",
	"progress.min":                       "Progress must be between 0 and 100",
	"progress.max":                       "Progress must be between 0 and 100",
	"email.email":                        "Invalid email",
	"email.required":                     "Email is required",
	"password.required":                  "Password is required",
	"password.min":                       "Password must be at least 6 characters",
	"projectId.required":                 "Project ID is required",
}

// FieldMessage 把校验错误转成面向用户的提示
func FieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	structName := strings.SplitN(fe.Namespace(), ".", 2)[0]

	if msg, ok := fieldMessages[structName+"."+field+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := fieldMessages[field+"."+fe.Tag()]; ok {
		return msg
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("Invalid %s", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("Invalid %s", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
