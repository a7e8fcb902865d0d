package ml

import (
	"errors"
	"fmt"
)

type LabelEncoder struct {
	classes []string
}

func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, errors.New("label encoder has no classes")
	}
	seen := make(map[string]bool, len(classes))
	for i, name := range classes {
		if name == "" {
			return nil, fmt.Errorf("class %d has an empty name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate class %q", name)
		}
		seen[name] = true
	}
	return &LabelEncoder{classes: append([]string(nil), classes...)}, nil
}

func (e *LabelEncoder) InverseTransform(label int) (string, error) {
	if label < 0 || label >= len(e.classes) {
		return "", fmt.Errorf("y contains previously unseen label %d", label)
	}
	return e.classes[label], nil
}

func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

func (e *LabelEncoder) Len() int {
	return len(e.classes)
}
