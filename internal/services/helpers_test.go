package services

import (
	"errors"

	"github.com/bobarin/shortform/internal/apperr"
)

func asAppErr(err error, target **apperr.Error) bool {
	return errors.As(err, target)
}
