package authoring

import (
	"fmt"
	"strconv"
	"strings"
)

const draftKeySeparator = "::"

// addresses a lesson by section and lesson position
type DraftKey struct {
	Section int
	Lesson  int
}

func (k DraftKey) String() string {
	return strconv.Itoa(k.Section) + draftKeySeparator + strconv.Itoa(k.Lesson)
}

// parses the "<section>::<lesson>" text form
func ParseDraftKey(s string) (DraftKey, error) {
	sec, les, ok := strings.Cut(s, draftKeySeparator)
	if !ok {
		return DraftKey{}, fmt.Errorf("invalid draft key %q", s)
	}

	section, err := strconv.Atoi(sec)
	if err != nil || section < 0 {
		return DraftKey{}, fmt.Errorf("invalid draft key section %q", s)
	}

	lesson, err := strconv.Atoi(les)
	if err != nil || lesson < 0 {
		return DraftKey{}, fmt.Errorf("invalid draft key lesson %q", s)
	}

	return DraftKey{Section: section, Lesson: lesson}, nil
}

func (k DraftKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *DraftKey) UnmarshalText(text []byte) error {
	parsed, err := ParseDraftKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
