package risk

import "errors"

var (
	ErrUnknownLevel    = errors.New("unknown risk level")
	ErrUnknownCategory = errors.New("unknown risk category")
	ErrNoClassifier    = errors.New("no classifier configured")
	ErrEmptyResponse   = errors.New("classifier returned no assessment")
)
