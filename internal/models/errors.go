package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate reports a uniqueness violation at the storage layer.
	ErrDuplicate = errors.New("duplicate record")
	// ErrAlreadyCompleted reports that a completion write lost to an earlier one.
	ErrAlreadyCompleted = errors.New("already completed")
	// ErrNotFound reports a missing row targeted by a mutation.
	ErrNotFound = errors.New("record not found")
	// ErrProtected reports an attempt to delete a system record.
	ErrProtected = errors.New("system record is protected")
)

// DependentsError blocks a company deletion while it still owns records.
type DependentsError struct {
	Users       int
	Assessments int
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("company has %d users and %d assessments", e.Users, e.Assessments)
}
