package flow

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Bounds for captured fields. Plaintext-indexable fields stay short;
// ciphertext fields get roomier limits.
const (
	maxServiceNameLen = 100
	maxUsernameLen    = 255
	maxSecretLen      = 500
	maxTitleLen       = 100
	maxContentLen     = 1000
	maxFileNameLen    = 255
	maxTagCount       = 10
	maxTagLen         = 50

	minMasterLen = 8
	maxMasterLen = 128
)

var (
	serviceNameRe = regexp.MustCompile(`^[a-zA-Z0-9 ._-]+$`)
	tagRe         = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	hashtagRe     = regexp.MustCompile(`#(\w+)`)

	forbiddenFileNameChars = `<>:"/\|?*`

	masterSpecialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

func validateServiceName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", invalidf("service name cannot be empty")
	}
	if len(name) > maxServiceNameLen {
		return "", invalidf("service name must be at most %d characters", maxServiceNameLen)
	}
	if !serviceNameRe.MatchString(name) {
		return "", invalidf("service name may only contain letters, digits, spaces, dots, hyphens, and underscores")
	}
	return name, nil
}

func validateUsername(input string) (string, error) {
	username := strings.TrimSpace(input)
	if username == "" {
		return "", invalidf("username cannot be empty")
	}
	if len(username) > maxUsernameLen {
		return "", invalidf("username must be at most %d characters", maxUsernameLen)
	}
	return username, nil
}

func validateSecretValue(input string) (string, error) {
	if input == "" {
		return "", invalidf("password cannot be empty")
	}
	if len(input) > maxSecretLen {
		return "", invalidf("password must be at most %d characters", maxSecretLen)
	}
	return input, nil
}

func validateTaskTitle(input string) (string, error) {
	title := strings.TrimSpace(input)
	if title == "" {
		return "", invalidf("task title cannot be empty")
	}
	if len(title) > maxTitleLen {
		return "", invalidf("task title must be at most %d characters", maxTitleLen)
	}
	return title, nil
}

func validateTaskContent(input string) (string, error) {
	content := strings.TrimSpace(input)
	if content == "" {
		return "", invalidf("task content cannot be empty")
	}
	if len(content) > maxContentLen {
		return "", invalidf("task content must be at most %d characters", maxContentLen)
	}
	return content, nil
}

func validatePriority(input string) (string, error) {
	priority := strings.ToLower(strings.TrimSpace(input))
	switch priority {
	case "low", "medium", "high":
		return priority, nil
	}
	return "", invalidf("priority must be one of: low, medium, high")
}

// validateDueDate accepts YYYY-MM-DD and rejects dates in the past.
// The normalized value keeps the same format.
func validateDueDate(input string) (string, error) {
	return validateDueDateAt(input, time.Now())
}

func validateDueDateAt(input string, now time.Time) (string, error) {
	raw := strings.TrimSpace(input)
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return "", invalidf("invalid date format, use YYYY-MM-DD (e.g. 2026-12-31)")
	}
	// Compare calendar dates in the caller's zone, not absolute instants.
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if parsed.Before(today) {
		return "", invalidf("due date cannot be in the past")
	}
	return parsed.Format("2006-01-02"), nil
}

// validateTags parses hashtag or comma-separated tags, lowercases and
// deduplicates them, and normalizes to a comma-joined list.
func validateTags(input string) (string, error) {
	var tags []string

	for _, m := range hashtagRe.FindAllStringSubmatch(input, -1) {
		tags = append(tags, m[1])
	}
	if len(tags) == 0 {
		for _, t := range strings.Split(input, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	if len(tags) == 0 {
		return "", invalidf("no tags found; use #tag or a comma-separated list")
	}
	if len(tags) > maxTagCount {
		return "", invalidf("at most %d tags allowed", maxTagCount)
	}

	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(tag)
		if len(tag) > maxTagLen {
			return "", invalidf("each tag must be at most %d characters", maxTagLen)
		}
		if !tagRe.MatchString(tag) {
			return "", invalidf("tag %q contains invalid characters", tag)
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		normalized = append(normalized, tag)
	}
	return strings.Join(normalized, ","), nil
}

func validateFileName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", invalidf("file name cannot be empty")
	}
	if len(name) > maxFileNameLen {
		return "", invalidf("file name must be at most %d characters", maxFileNameLen)
	}
	if strings.ContainsAny(name, forbiddenFileNameChars) {
		return "", invalidf("file name cannot contain any of %s", forbiddenFileNameChars)
	}
	return name, nil
}

func validateDescription(input string) (string, error) {
	description := strings.TrimSpace(input)
	if description == "" {
		return "", invalidf("description cannot be empty")
	}
	if len(description) > maxContentLen {
		return "", invalidf("description must be at most %d characters", maxContentLen)
	}
	return description, nil
}

func validateConfirm(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "yes", "y":
		return confirmYes, nil
	case "no", "n":
		return confirmNo, nil
	}
	return "", invalidf("please answer yes or no")
}

// ValidateMasterPassword enforces the master-password strength policy:
// 8-128 characters with at least one uppercase letter, one lowercase
// letter, one digit, and one special character.
func ValidateMasterPassword(password string) error {
	if len(password) < minMasterLen {
		return invalidf("master password must be at least %d characters", minMasterLen)
	}
	if len(password) > maxMasterLen {
		return invalidf("master password must be at most %d characters", maxMasterLen)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(masterSpecialChars, r):
			hasSpecial = true
		}
	}
	switch {
	case !hasUpper:
		return invalidf("master password must contain at least one uppercase letter")
	case !hasLower:
		return invalidf("master password must contain at least one lowercase letter")
	case !hasDigit:
		return invalidf("master password must contain at least one digit")
	case !hasSpecial:
		return invalidf("master password must contain at least one special character")
	}
	return nil
}
