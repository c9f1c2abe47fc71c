package validator

import (
	"regexp"
	"strings"
	"unicode"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail 校验邮箱格式
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidateUsername 校验用户名，3-20位字母数字
func ValidateUsername(username string) bool {
	if len(username) < 3 || len(username) > 20 {
		return false
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ValidatePassword 校验密码强度，至少8位且同时包含字母和数字
func ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// SanitizeInput 清理文本输入并截断到最大长度
func SanitizeInput(text string, maxLength int) string {
	text = strings.TrimSpace(text)
	if len(text) > maxLength {
		text = text[:maxLength]
	}
	return text
}
