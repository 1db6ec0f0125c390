package services

import (
	"errors"
	"strings"

	"kbase/pkg/models"
)

// Home addresses the landing-page content. It is a reserved key, not a
// section name.
const Home = "Главная"

const keySep = "/"

var (
	errEmptyName     = errors.New("name cannot be empty")
	errNameSeparator = errors.New("name cannot contain '/'")
)

// JoinKey builds the canonical key for a section or section/category pair.
func JoinKey(section, category string) string {
	if category == "" {
		return section
	}
	return section + keySep + category
}

// ResolveKey splits key and checks it against the live sections index.
// ok is false when the path does not name an existing section, or names a
// category missing from its section.
func ResolveKey(sections []models.Section, key string) (section, category string, ok bool) {
	first, rest, hasCategory := strings.Cut(key, keySep)
	for i := range sections {
		if sections[i].Name != first {
			continue
		}
		if !hasCategory {
			return first, "", true
		}
		for _, c := range sections[i].Categories {
			if c == rest {
				return first, rest, true
			}
		}
		return "", "", false
	}
	return "", "", false
}

// ValidateName rejects names that cannot form an unambiguous key.
func ValidateName(name string) error {
	if name == "" {
		return errEmptyName
	}
	if strings.Contains(name, keySep) {
		return errNameSeparator
	}
	return nil
}
