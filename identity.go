package kapytal

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Bounds on names and descriptions.
const (
	NameMinLength        = 1
	NameMaxLength        = 32
	DescriptionMaxLength = 256
)

// identity is the name and the creation/edition timestamps shared by named entities.
type identity struct {
	name    string
	created time.Time
	edited  time.Time
}

func newIdentity(name string, now time.Time) identity {
	return identity{name: name, created: now, edited: now}
}

// Name returns the entity's name.
func (i *identity) Name() string { return i.name }

// Created returns when the entity was created.
func (i *identity) Created() time.Time { return i.created }

// Edited returns when the entity was last edited.
func (i *identity) Edited() time.Time { return i.edited }

func (i *identity) rename(name string, now time.Time) {
	i.name = name
	i.edited = now
}

// validateName checks length bounds and, unless allowSlash, the absence of the path separator.
func validateName(kind, name string, maxLength int, allowSlash bool) error {
	n := utf8.RuneCountInString(name)
	if n < NameMinLength || n > maxLength {
		return invalidf("%s name %q length must be within %d and %d", kind, name, NameMinLength, maxLength)
	}
	if strings.TrimSpace(name) != name {
		return invalidf("%s name %q must not start or end with spaces", kind, name)
	}
	if !allowSlash && strings.Contains(name, PathSeparator) {
		return invalidf("%s name %q must not contain %q", kind, name, PathSeparator)
	}
	return nil
}

// normalizeDescription trims and checks a transaction description.
func normalizeDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > DescriptionMaxLength {
		return "", invalidf("description must be at most %d characters", DescriptionMaxLength)
	}
	return description, nil
}

// validateTimestamp rejects the zero time.
func validateTimestamp(t time.Time) error {
	if t.IsZero() {
		return invalidf("timestamp must be set")
	}
	return nil
}
