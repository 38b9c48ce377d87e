package validator

import "strings"

// FieldError 表示必填字段缺失。
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return e.Field + " is required"
}

// Field 描述一个待校验的必填字段。
type Field struct {
	Name  string
	Value string
}

// RequireString 校验必填字符串，返回去除首尾空白后的值。
func RequireString(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", &FieldError{Field: name}
	}
	return trimmed, nil
}

// MissingFields 按声明顺序返回所有为空的字段名。
func MissingFields(fields ...Field) []string {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.Value) == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing
}
